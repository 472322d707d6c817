package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	folderColumns = `id, owner_id, name, parent_id, created_at`
	fileColumns   = `id, owner_id, name, size, category, folder_id, uploaded_at, blob_key`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetFolder(ctx context.Context, id string) (*Folder, error) {
	return getFolder(ctx, r.db.Pool, id, "")
}

func (r *Repository) GetFile(ctx context.Context, id string) (*File, error) {
	return getFile(ctx, r.db.Pool, id, "")
}

func (r *Repository) ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*Folder, error) {
	return queryFolders(ctx, r.db.Pool, `
		SELECT `+folderColumns+` FROM folders
		WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2
		ORDER BY name, created_at
	`, ownerID, parentID)
}

func (r *Repository) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*File, error) {
	return queryFiles(ctx, r.db.Pool, `
		SELECT `+fileColumns+` FROM files
		WHERE owner_id = $1 AND folder_id IS NOT DISTINCT FROM $2
		ORDER BY name, uploaded_at
	`, ownerID, folderID)
}

func (r *Repository) OwnerFolders(ctx context.Context, ownerID string) ([]*Folder, error) {
	return queryFolders(ctx, r.db.Pool, `
		SELECT `+folderColumns+` FROM folders WHERE owner_id = $1 ORDER BY created_at
	`, ownerID)
}

func (r *Repository) OwnerFiles(ctx context.Context, ownerID string) ([]*File, error) {
	return queryFiles(ctx, r.db.Pool, `
		SELECT `+fileColumns+` FROM files WHERE owner_id = $1 ORDER BY uploaded_at
	`, ownerID)
}

func (r *Repository) SumFileSizes(ctx context.Context, ownerID string) (int64, error) {
	return sumFileSizes(ctx, r.db.Pool, ownerID)
}

func (r *Repository) Owners(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT owner_id FROM folders
		UNION
		SELECT owner_id FROM files
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan owners: %w", err)
	}
	return owners, nil
}

// InTx runs fn inside a single PostgreSQL transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	return mapError(err)
}

// pgTx adapts a pgx.Tx to the Tx interface.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) FolderForUpdate(ctx context.Context, id string) (*Folder, error) {
	return getFolder(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) FileForUpdate(ctx context.Context, id string) (*File, error) {
	return getFile(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) LockOwner(ctx context.Context, ownerID string) error {
	if _, err := t.tx.Exec(ctx,
		"INSERT INTO owners (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING", ownerID); err != nil {
		return fmt.Errorf("failed to register owner: %w", err)
	}
	var locked string
	if err := t.tx.QueryRow(ctx,
		"SELECT owner_id FROM owners WHERE owner_id = $1 FOR UPDATE", ownerID).Scan(&locked); err != nil {
		return fmt.Errorf("failed to lock owner: %w", err)
	}
	return nil
}

func (t *pgTx) SumFileSizes(ctx context.Context, ownerID string) (int64, error) {
	return sumFileSizes(ctx, t.tx, ownerID)
}

func (t *pgTx) ChildFolderIDs(ctx context.Context, parentID string) ([]string, error) {
	rows, err := t.tx.Query(ctx, "SELECT id FROM folders WHERE parent_id = $1 FOR UPDATE", parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query child folders: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan child folders: %w", err)
	}
	return ids, nil
}

func (t *pgTx) FilesInFolders(ctx context.Context, folderIDs []string) ([]*File, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	return queryFiles(ctx, t.tx, `
		SELECT `+fileColumns+` FROM files WHERE folder_id = ANY($1) FOR UPDATE
	`, folderIDs)
}

func (t *pgTx) InsertFolder(ctx context.Context, folder *Folder) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO folders (id, owner_id, name, parent_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, folder.ID, folder.OwnerID, folder.Name, folder.ParentID, folder.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert folder: %w", mapError(err))
	}
	return nil
}

func (t *pgTx) InsertFile(ctx context.Context, file *File) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO files (id, owner_id, name, size, category, folder_id, uploaded_at, blob_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		file.ID,
		file.OwnerID,
		file.Name,
		file.Size,
		string(file.Category),
		file.FolderID,
		file.UploadedAt,
		file.BlobKey,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", mapError(err))
	}
	return nil
}

func (t *pgTx) RenameFolder(ctx context.Context, id, name string) error {
	return execOne(ctx, t.tx, "rename folder", "UPDATE folders SET name = $2 WHERE id = $1", id, name)
}

func (t *pgTx) SetFolderParent(ctx context.Context, id string, parentID *string) error {
	return execOne(ctx, t.tx, "move folder", "UPDATE folders SET parent_id = $2 WHERE id = $1", id, parentID)
}

func (t *pgTx) SetFileFolder(ctx context.Context, id string, folderID *string) error {
	return execOne(ctx, t.tx, "move file", "UPDATE files SET folder_id = $2 WHERE id = $1", id, folderID)
}

func (t *pgTx) DeleteFiles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, "DELETE FROM files WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("failed to delete files: %w", mapError(err))
	}
	return nil
}

// DeleteFolders removes the given folders in a single statement, so parent and
// child rows may be deleted together without tripping the self-reference.
func (t *pgTx) DeleteFolders(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, "DELETE FROM folders WHERE id = ANY($1)", ids); err != nil {
		// A row created under one of these folders after it was collected.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("failed to delete folders: %w: %s", ErrConflict, pgErr.Message)
		}
		return fmt.Errorf("failed to delete folders: %w", mapError(err))
	}
	return nil
}

// --- Helpers ---

func getFolder(ctx context.Context, q querier, id, lock string) (*Folder, error) {
	folder, err := scanFolder(q.QueryRow(ctx, "SELECT "+folderColumns+" FROM folders WHERE id = $1 "+lock, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", mapError(err))
	}
	return folder, nil
}

func getFile(ctx context.Context, q querier, id, lock string) (*File, error) {
	file, err := scanFile(q.QueryRow(ctx, "SELECT "+fileColumns+" FROM files WHERE id = $1 "+lock, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", mapError(err))
	}
	return file, nil
}

func queryFolders(ctx context.Context, q querier, sql string, args ...any) ([]*Folder, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", mapError(err))
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

func queryFiles(ctx context.Context, q querier, sql string, args ...any) ([]*File, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", mapError(err))
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func scanFolder(row rowScanner) (*Folder, error) {
	folder := &Folder{}
	if err := row.Scan(
		&folder.ID,
		&folder.OwnerID,
		&folder.Name,
		&folder.ParentID,
		&folder.CreatedAt,
	); err != nil {
		return nil, err
	}
	return folder, nil
}

func scanFile(row rowScanner) (*File, error) {
	file := &File{}
	var category string
	if err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&file.Name,
		&file.Size,
		&category,
		&file.FolderID,
		&file.UploadedAt,
		&file.BlobKey,
	); err != nil {
		return nil, err
	}
	file.Category = Category(category)
	return file, nil
}

func sumFileSizes(ctx context.Context, q querier, ownerID string) (int64, error) {
	var total int64
	err := q.QueryRow(ctx,
		"SELECT COALESCE(SUM(size), 0) FROM files WHERE owner_id = $1", ownerID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes: %w", mapError(err))
	}
	return total, nil
}

func execOne(ctx context.Context, q querier, op, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// mapError translates PostgreSQL failure codes into store sentinels.
func mapError(err error) error {
	if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.Message)
		}
	}
	return err
}
