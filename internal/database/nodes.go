package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"hs-go/internal/files"
	"hs-go/internal/model"
)

// NodeRepository implements files.NodeRepository for one user. Every
// statement is filtered by user_id.
type NodeRepository struct {
	db     *sql.DB
	userID int64
}

const nodeColumns = `f.id, f.user_id, f.title, f.parent_id, f.node_type, f.filesystem_path,
	f.mime_type, f.modified_at, f.node_size, f.node_version`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanNode scans nodeColumns followed by any extra destinations.
func scanNode(row rowScanner, extra ...any) (*model.Node, error) {
	var (
		n      model.Node
		parent sql.NullInt64
	)
	dest := append([]any{
		&n.ID, &n.UserID, &n.Title, &parent, &n.Type, &n.FilesystemPath,
		&n.MimeType, &n.ModifiedAt, &n.Size, &n.Version,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	n.ParentID = parent.Int64
	n.ModifiedAt = n.ModifiedAt.UTC()
	return &n, nil
}

func nullParent(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (r *NodeRepository) queryNodes(ctx context.Context, op, query string, args ...any) ([]*model.Node, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return nodes, nil
}

// queryNode returns nil, nil when no row matches.
func (r *NodeRepository) queryNode(ctx context.Context, op, query string, args ...any) (*model.Node, error) {
	n, err := scanNode(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr(op, err)
	}
	return n, nil
}

// Node reads

func (r *NodeRepository) GetNode(ctx context.Context, id int64) (*model.Node, error) {
	n, err := r.queryNode(ctx, "getting node",
		`SELECT `+nodeColumns+` FROM file_nodes f WHERE f.user_id = ? AND f.id = ?`, r.userID, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("node %d: %w", id, files.ErrNotFound)
	}
	return n, nil
}

func (r *NodeRepository) GetRootNode(ctx context.Context) (*model.Node, error) {
	n, err := r.queryNode(ctx, "getting root node",
		`SELECT `+nodeColumns+` FROM file_nodes f WHERE f.user_id = ? AND f.parent_id IS NULL`, r.userID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("root folder of user %d: %w", r.userID, files.ErrNotFound)
	}
	return n, nil
}

func (r *NodeRepository) GetNodeByPath(ctx context.Context, path string) (*model.Node, error) {
	return r.queryNode(ctx, "getting node by path",
		`SELECT `+nodeColumns+` FROM file_nodes f WHERE f.user_id = ? AND f.filesystem_path = ?`, r.userID, path)
}

func (r *NodeRepository) GetNodeByTitle(ctx context.Context, parentID int64, title string) (*model.Node, error) {
	return r.queryNode(ctx, "getting node by title",
		`SELECT `+nodeColumns+` FROM file_nodes f WHERE f.user_id = ? AND f.parent_id = ? AND f.title = ?`,
		r.userID, parentID, title)
}

func (r *NodeRepository) GetChildren(ctx context.Context, parentID int64) ([]*model.Node, error) {
	return r.queryNodes(ctx, "getting children",
		`SELECT `+nodeColumns+` FROM file_nodes f WHERE f.user_id = ? AND f.parent_id = ?
		ORDER BY f.node_type, f.title, f.id`, r.userID, parentID)
}

func (r *NodeRepository) ListChildren(ctx context.Context, parentID int64, opts model.ListOptions) (*model.Page, error) {
	if !opts.Sort.Column.Valid() {
		return nil, fmt.Errorf("%w: unknown sort column %q", files.ErrInvalidOperation, opts.Sort.Column)
	}

	page := &model.Page{Items: []*model.DisplayNode{}}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_nodes WHERE user_id = ? AND parent_id = ?`, r.userID, parentID).Scan(&page.Total)
	if err != nil {
		return nil, storeErr("counting children", err)
	}

	var order strings.Builder
	order.WriteString("f.node_type, f.")
	order.WriteString(string(opts.Sort.Column))
	if opts.Sort.Column == model.SortByTitle {
		order.WriteString(" COLLATE NOCASE")
	}
	if opts.Sort.Descending {
		order.WriteString(" DESC")
	}
	order.WriteString(", f.id")

	query := `SELECT ` + nodeColumns + `, fav.node_id IS NOT NULL
		FROM file_nodes f
		LEFT JOIN favorite_nodes fav ON fav.node_id = f.id AND fav.user_id = f.user_id
		WHERE f.user_id = ? AND f.parent_id = ?
		ORDER BY ` + order.String()
	args := []any{r.userID, parentID}
	if opts.PageSize > 0 {
		p := max(opts.Page, 1)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.PageSize, (p-1)*opts.PageSize)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("listing children", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fav bool
		n, err := scanNode(rows, &fav)
		if err != nil {
			return nil, storeErr("listing children", err)
		}
		page.Items = append(page.Items, &model.DisplayNode{
			ID:         n.ID,
			Title:      n.Title,
			Type:       n.Type,
			MimeType:   n.MimeType,
			ModifiedAt: n.ModifiedAt,
			Size:       n.Size,
			Version:    n.Version,
			IsFavorite: fav,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("listing children", err)
	}
	return page, nil
}

func (r *NodeRepository) GetAncestors(ctx context.Context, id int64) ([]*model.Node, error) {
	return r.queryNodes(ctx, "getting ancestors", `
		WITH RECURSIVE chain(id, parent_id, depth) AS (
			SELECT id, parent_id, 0 FROM file_nodes WHERE user_id = ? AND id = ?
			UNION ALL
			SELECT n.id, n.parent_id, c.depth + 1
			FROM file_nodes n JOIN chain c ON n.id = c.parent_id
			WHERE n.user_id = ?
		)
		SELECT `+nodeColumns+`
		FROM file_nodes f JOIN chain c ON c.id = f.id
		WHERE f.parent_id IS NOT NULL
		ORDER BY c.depth DESC`, r.userID, id, r.userID)
}

func (r *NodeRepository) GetDescendants(ctx context.Context, id int64) ([]*model.Node, error) {
	return r.queryNodes(ctx, "getting descendants", `
		WITH RECURSIVE subtree(id, depth) AS (
			SELECT id, 1 FROM file_nodes WHERE user_id = ? AND parent_id = ?
			UNION ALL
			SELECT n.id, s.depth + 1
			FROM file_nodes n JOIN subtree s ON n.parent_id = s.id
			WHERE n.user_id = ?
		)
		SELECT `+nodeColumns+`
		FROM file_nodes f JOIN subtree s ON s.id = f.id
		ORDER BY s.depth, f.id`, r.userID, id, r.userID)
}

// Node writes

func (r *NodeRepository) AddNode(ctx context.Context, node *model.Node) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO file_nodes (user_id, title, parent_id, node_type, filesystem_path, mime_type, modified_at, node_size, node_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.userID, node.Title, nullParent(node.ParentID), node.Type, node.FilesystemPath,
		node.MimeType, node.ModifiedAt.UTC(), node.Size, node.Version)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintUnique):
			return 0, &files.ConflictError{ParentID: node.ParentID, Title: node.Title, Reason: "a node with this title already exists"}
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return 0, fmt.Errorf("parent %d: %w", node.ParentID, files.ErrNotFound)
		}
		return 0, storeErr("inserting node", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("reading node id", err)
	}
	return id, nil
}

func (r *NodeRepository) UpdateNode(ctx context.Context, old, updated *model.Node) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE file_nodes
		SET mime_type = ?, modified_at = ?, node_size = ?, node_version = node_version + 1
		WHERE user_id = ? AND id = ? AND node_version = ?`,
		updated.MimeType, updated.ModifiedAt.UTC(), updated.Size, r.userID, old.ID, old.Version)
	if err != nil {
		return storeErr("updating node", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("updating node", err)
	}
	if n == 1 {
		return nil
	}

	// Either the node is gone or someone else bumped its version.
	if _, err := r.GetNode(ctx, old.ID); err != nil {
		return err
	}
	return &files.ConflictError{
		ParentID: old.ParentID,
		Title:    old.Title,
		Reason:   fmt.Sprintf("node changed since version %d was read", old.Version),
	}
}

func (r *NodeRepository) PermanentDelete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_nodes WHERE user_id = ? AND id = ?`, r.userID, id)
	if err != nil {
		return 0, storeErr("deleting node", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("deleting node", err)
	}
	return n, nil
}

func (r *NodeRepository) DeleteNode(ctx context.Context, node *model.Node, physical func() error) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM file_nodes WHERE user_id = ? AND id = ?`, r.userID, node.ID)
		if err != nil {
			return storeErr("deleting node", err)
		}
		if err := requireAffected(res, node.ID); err != nil {
			return err
		}
		return runPhysical(physical)
	})
}

func (r *NodeRepository) RenameNode(ctx context.Context, node *model.Node, title, path string, physical func() error) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE file_nodes SET title = ?, filesystem_path = ? WHERE user_id = ? AND id = ?`,
			title, path, r.userID, node.ID)
		if err != nil {
			if isConstraint(err, sqlite3.ErrConstraintUnique) {
				return &files.ConflictError{ParentID: node.ParentID, Title: title, Reason: "a node with this title already exists"}
			}
			return storeErr("renaming node", err)
		}
		if err := requireAffected(res, node.ID); err != nil {
			return err
		}

		// substr over a BLOB counts bytes.
		_, err = tx.ExecContext(ctx, `
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM file_nodes WHERE user_id = ? AND parent_id = ?
				UNION ALL
				SELECT n.id FROM file_nodes n JOIN subtree s ON n.parent_id = s.id
			)
			UPDATE file_nodes
			SET filesystem_path = ? || CAST(substr(CAST(filesystem_path AS BLOB), ?) AS TEXT)
			WHERE id IN (SELECT id FROM subtree)`,
			r.userID, node.ID, path, len(node.FilesystemPath)+1)
		if err != nil {
			return storeErr("re-pathing descendants", err)
		}
		return runPhysical(physical)
	})
}

// Trash

func (r *NodeRepository) MoveToTrash(ctx context.Context, node *model.Node, trashName string, deletedAt time.Time, relocate func() error) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trash_nodes (node_id, user_id, title, parent_id, node_type, filesystem_path,
				mime_type, modified_at, node_size, node_version, deleted_at, file_name)
			SELECT id, user_id, title, parent_id, node_type, filesystem_path,
				mime_type, modified_at, node_size, node_version, ?, ?
			FROM file_nodes WHERE user_id = ? AND id = ?`,
			deletedAt.UTC(), trashName, r.userID, node.ID)
		if err != nil {
			return storeErr("quarantining node", err)
		}
		if err := requireAffected(res, node.ID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM file_nodes WHERE user_id = ? AND id = ?`, r.userID, node.ID); err != nil {
			return storeErr("removing live node", err)
		}
		return runPhysical(relocate)
	})
}

const trashColumns = `t.node_id, t.user_id, t.title, t.parent_id, t.node_type, t.filesystem_path,
	t.mime_type, t.modified_at, t.node_size, t.node_version, t.deleted_at, t.file_name`

func scanTrashNode(row rowScanner) (*model.TrashNode, error) {
	var (
		tn     model.TrashNode
		parent sql.NullInt64
	)
	err := row.Scan(&tn.ID, &tn.UserID, &tn.Title, &parent, &tn.Type, &tn.FilesystemPath,
		&tn.MimeType, &tn.ModifiedAt, &tn.Size, &tn.Version, &tn.DeletedAt, &tn.FileName)
	if err != nil {
		return nil, err
	}
	tn.ParentID = parent.Int64
	tn.ModifiedAt = tn.ModifiedAt.UTC()
	tn.DeletedAt = tn.DeletedAt.UTC()
	return &tn, nil
}

func (r *NodeRepository) ListTrash(ctx context.Context) ([]*model.TrashNode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+trashColumns+` FROM trash_nodes t WHERE t.user_id = ? ORDER BY t.deleted_at DESC, t.node_id DESC`,
		r.userID)
	if err != nil {
		return nil, storeErr("listing trash", err)
	}
	defer rows.Close()

	var nodes []*model.TrashNode
	for rows.Next() {
		tn, err := scanTrashNode(rows)
		if err != nil {
			return nil, storeErr("listing trash", err)
		}
		nodes = append(nodes, tn)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("listing trash", err)
	}
	return nodes, nil
}

func (r *NodeRepository) GetTrashNode(ctx context.Context, id int64) (*model.TrashNode, error) {
	tn, err := scanTrashNode(r.db.QueryRowContext(ctx,
		`SELECT `+trashColumns+` FROM trash_nodes t WHERE t.user_id = ? AND t.node_id = ?`, r.userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trashed node %d: %w", id, files.ErrNotFound)
		}
		return nil, storeErr("getting trashed node", err)
	}
	return tn, nil
}

func (r *NodeRepository) PurgeTrashNode(ctx context.Context, node *model.TrashNode, physical func() error) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM trash_nodes WHERE user_id = ? AND node_id = ?`, r.userID, node.ID)
		if err != nil {
			return storeErr("purging node", err)
		}
		if err := requireAffected(res, node.ID); err != nil {
			return err
		}
		return runPhysical(physical)
	})
}

// Versions

func (r *NodeRepository) AddVersion(ctx context.Context, v *model.Version) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO file_versions (user_id, node_id, node_version, created_at, modified_at, node_size, file_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.userID, v.NodeID, v.Version, v.CreatedAt.UTC(), v.ModifiedAt.UTC(), v.Size, v.FileName)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return 0, &files.ConflictError{Reason: fmt.Sprintf("version %d of node %d already recorded", v.Version, v.NodeID)}
		}
		return 0, storeErr("inserting version", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("reading version id", err)
	}
	return id, nil
}

func (r *NodeRepository) DeleteVersion(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM file_versions WHERE user_id = ? AND id = ?`, r.userID, id)
	if err != nil {
		return storeErr("deleting version", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("deleting version", err)
	}
	if n == 0 {
		return fmt.Errorf("version %d: %w", id, files.ErrNotFound)
	}
	return nil
}

func (r *NodeRepository) GetVersions(ctx context.Context, nodeID int64) ([]*model.Version, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, node_id, node_version, created_at, modified_at, node_size, file_name
		FROM file_versions WHERE user_id = ? AND node_id = ?
		ORDER BY node_version`, r.userID, nodeID)
	if err != nil {
		return nil, storeErr("listing versions", err)
	}
	defer rows.Close()

	versions := []*model.Version{}
	for rows.Next() {
		var v model.Version
		if err := rows.Scan(&v.ID, &v.UserID, &v.NodeID, &v.Version, &v.CreatedAt, &v.ModifiedAt, &v.Size, &v.FileName); err != nil {
			return nil, storeErr("listing versions", err)
		}
		v.CreatedAt = v.CreatedAt.UTC()
		v.ModifiedAt = v.ModifiedAt.UTC()
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("listing versions", err)
	}
	return versions, nil
}

// Favorites

func (r *NodeRepository) SetFavorite(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO favorite_nodes (user_id, node_id) VALUES (?, ?)`, r.userID, id)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("node %d: %w", id, files.ErrNotFound)
		}
		return storeErr("setting favorite", err)
	}
	return nil
}

func (r *NodeRepository) UnsetFavorite(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM favorite_nodes WHERE user_id = ? AND node_id = ?`, r.userID, id); err != nil {
		return storeErr("unsetting favorite", err)
	}
	return nil
}

// inTx runs fn in a transaction and commits if it returns nil.
func (r *NodeRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("starting transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("committing transaction", err)
	}
	return nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("reading affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("node %d: %w", id, files.ErrNotFound)
	}
	return nil
}

func runPhysical(fn func() error) error {
	if fn == nil {
		return nil
	}
	return fn()
}

var _ files.NodeRepository = (*NodeRepository)(nil)
