package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// resourceTables maps each resource type to the platform table holding it.
// Every table shares the columns the engine reads: id, created_at,
// size_bytes, status, tags, content.
var resourceTables = map[model.ResourceType]string{
	model.ResourceScan:   "scans",
	model.ResourceEntity: "entities",
	model.ResourceEvent:  "events",
	model.ResourceReport: "reports",
	model.ResourceLog:    "logs",
}

// PostgresProvider reads and mutates the platform's resource tables.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

func NewPostgresProvider(pool *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{pool: pool}
}

func tableFor(resourceType model.ResourceType) (string, error) {
	table, ok := resourceTables[resourceType]
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrUnknownResourceType, resourceType)
	}
	return table, nil
}

func (p *PostgresProvider) Snapshot(ctx context.Context, resourceType model.ResourceType, asOf time.Time) ([]model.ResourceDescriptor, error) {
	table, err := tableFor(resourceType)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, created_at, size_bytes, status, tags
		 FROM %s WHERE created_at <= $1`, table), asOf)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", resourceType, err)
	}
	defer rows.Close()

	out := make([]model.ResourceDescriptor, 0)
	for rows.Next() {
		desc := model.ResourceDescriptor{ResourceType: resourceType}
		if err := rows.Scan(&desc.ResourceID, &desc.CreatedAt, &desc.SizeBytes, &desc.Status, &desc.Tags); err != nil {
			return nil, fmt.Errorf("scan %s descriptor: %w", resourceType, err)
		}
		out = append(out, desc)
	}
	return out, rows.Err()
}

func (p *PostgresProvider) Content(ctx context.Context, resourceType model.ResourceType, resourceID string) ([]byte, error) {
	table, err := tableFor(resourceType)
	if err != nil {
		return nil, err
	}

	var content []byte
	err = p.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT content FROM %s WHERE id = $1`, table), resourceID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s content: %w", resourceType, err)
	}
	return content, nil
}

func (p *PostgresProvider) Delete(ctx context.Context, resourceType model.ResourceType, resourceID string) error {
	table, err := tableFor(resourceType)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1`, table), resourceID)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", resourceType, resourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrResourceNotFound
	}
	return nil
}

func (p *PostgresProvider) SetStatus(ctx context.Context, resourceType model.ResourceType, resourceID string, status string) error {
	table, err := tableFor(resourceType)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET status = $2 WHERE id = $1`, table), resourceID, status)
	if err != nil {
		return fmt.Errorf("set %s %s status: %w", resourceType, resourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrResourceNotFound
	}
	return nil
}
