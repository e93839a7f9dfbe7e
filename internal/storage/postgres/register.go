package postgres

import "mongrel/internal/storage"

func init() {
	storage.Register("postgres", Dialect{}, New)
}
