package sqlite

import (
	"github.com/felixgeelhaar/pyquest/internal/progress"
	"github.com/felixgeelhaar/pyquest/internal/session"
	"github.com/felixgeelhaar/pyquest/internal/storage/sqldb"
)

var (
	_ progress.BlobStore = (*BlobStore)(nil)
	_ session.History    = (*sqldb.AttemptRepository)(nil)
)
