// Package repo implements the persistence layer as hand-written SQL.
//
// Every contended mutation is a single UPDATE carrying the expected source
// state in its WHERE clause; callers inspect the applied flag instead of
// re-reading and retrying. The database is the only coordinator between
// processes.
package repo

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repos bundles all repositories over one shared pool.
type Repos struct {
	Cases       *CaseRepo
	Jobs        *JobRepo
	Events      *EventRepo
	Messages    *MessageRepo
	Checkpoints *CheckpointRepo
	Transcripts *TranscriptRepo
	Prompts     *PromptRepo
	Users       *UserRepo
	Tokens      *TokenRepo
	AuthEvents  *AuthEventRepo
	Activity    *ActivityRepo
}

// New wires all repositories to the given pool.
func New(db *sql.DB) *Repos {
	return &Repos{
		Cases:       NewCaseRepo(db),
		Jobs:        NewJobRepo(db),
		Events:      NewEventRepo(db),
		Messages:    NewMessageRepo(db),
		Checkpoints: NewCheckpointRepo(db),
		Transcripts: NewTranscriptRepo(db),
		Prompts:     NewPromptRepo(db),
		Users:       NewUserRepo(db),
		Tokens:      NewTokenRepo(db),
		AuthEvents:  NewAuthEventRepo(db),
		Activity:    NewActivityRepo(db),
	}
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
