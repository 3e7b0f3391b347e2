// Package core holds the invitation and entitlement domain: tokens, guest
// profiles, the claim gate and the grant resolver. Storage, transport and
// alerting adapters depend on this package; core depends on none of them.
package core
