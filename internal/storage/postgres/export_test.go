package postgres

// Export internal symbols for testing.
// This file is only compiled during testing.

var (
	ExportValidate = func(opts ...Option) error {
		o := newOptions()
		for _, opt := range opts {
			opt(o)
		}
		return o.validate()
	}

	ExportConnectionString = func(opts ...Option) string {
		o := newOptions()
		for _, opt := range opts {
			opt(o)
		}
		return o.connectionString()
	}
)

// Pool exports the internal pool interface for testing.
type Pool = pool

// SetPool sets the connection pool for testing purposes.
func (s *Store) SetPool(p Pool) {
	s.conn = p
}
