package repository

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/tigerroll/bulkload/internal/domain/entity"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
)

// MovieRepository is the CRUD store behind the movies API.
type MovieRepository interface {
	// List returns movies ordered by id. A non-empty search keeps movies where every term
	// appears, case-insensitively, in the title, genre or director.
	List(ctx context.Context, search string) ([]entity.Movie, error)
	// Get returns database.ErrNotFound when id does not exist.
	Get(ctx context.Context, id uint) (entity.Movie, error)
	Create(ctx context.Context, m *entity.Movie) error
	// Update replaces every column of m, keyed by m.ID.
	Update(ctx context.Context, m *entity.Movie) error
	// Delete returns database.ErrNotFound when id does not exist.
	Delete(ctx context.Context, id uint) error
}

var searchFields = []string{"title", "genre", "director"}

type movieRepository struct {
	resolver database.DBConnectionResolver
	dbName   string
}

// NewMovieRepository creates a MovieRepository on connection dbName.
func NewMovieRepository(resolver database.DBConnectionResolver, dbName string) MovieRepository {
	return &movieRepository{resolver: resolver, dbName: dbName}
}

// SearchTerms splits a search string on whitespace and commas.
func SearchTerms(search string) []string {
	return strings.FieldsFunc(search, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// escapeLike escapes the LIKE wildcards in term using '!' as the escape character.
func escapeLike(term string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(term)
}

func searchConditions(search string) []database.Condition {
	var conds []database.Condition
	for _, term := range SearchTerms(search) {
		pattern := "%" + strings.ToLower(escapeLike(term)) + "%"
		clauses := make([]string, len(searchFields))
		args := make([]interface{}, len(searchFields))
		for i, f := range searchFields {
			clauses[i] = "LOWER(" + f + ") LIKE ? ESCAPE '!'"
			args[i] = pattern
		}
		conds = append(conds, database.Condition{SQL: "(" + strings.Join(clauses, " OR ") + ")", Args: args})
	}
	return conds
}

func (r *movieRepository) conn(ctx context.Context) (database.DBConnection, error) {
	return r.resolver.ResolveDBConnection(ctx, r.dbName)
}

func (r *movieRepository) List(ctx context.Context, search string) ([]entity.Movie, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	movies := []entity.Movie{}
	if err := conn.ExecuteQuery(ctx, &movies, database.Query{Conditions: searchConditions(search), OrderBy: "id"}); err != nil {
		return nil, database.ClassifyError("movie_repository", "failed to list movies", err)
	}
	return movies, nil
}

func (r *movieRepository) Get(ctx context.Context, id uint) (entity.Movie, error) {
	var m entity.Movie
	conn, err := r.conn(ctx)
	if err != nil {
		return m, err
	}
	if err := conn.FindOne(ctx, &m, map[string]interface{}{"id": id}); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return m, err
		}
		return m, database.ClassifyError("movie_repository", "failed to load movie", err)
	}
	return m, nil
}

func (r *movieRepository) Create(ctx context.Context, m *entity.Movie) error {
	return r.write(ctx, m, tx.OperationCreate)
}

func (r *movieRepository) Update(ctx context.Context, m *entity.Movie) error {
	if _, err := r.Get(ctx, m.ID); err != nil {
		return err
	}
	return r.write(ctx, m, tx.OperationUpdate)
}

func (r *movieRepository) Delete(ctx context.Context, id uint) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	n, err := conn.ExecuteUpdate(ctx, &entity.Movie{}, tx.OperationDelete, "", map[string]interface{}{"id": id})
	if err != nil {
		return database.ClassifyError("movie_repository", "failed to delete movie", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *movieRepository) write(ctx context.Context, m *entity.Movie, op string) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecuteUpdate(ctx, m, op, "", nil); err != nil {
		return database.ClassifyError("movie_repository", "failed to "+strings.ToLower(op)+" movie", err)
	}
	return nil
}
