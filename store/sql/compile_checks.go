package sqlstore

import "github.com/goliatone/go-invites/core"

var (
	_ core.TokenStore             = (*TokenStore)(nil)
	_ core.ProfileStore           = (*ProfileStore)(nil)
	_ core.ResourceStore          = (*ResourceStore)(nil)
	_ core.GrantStore             = (*GrantStore)(nil)
	_ core.GrantStore             = (*CachedGrantStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
