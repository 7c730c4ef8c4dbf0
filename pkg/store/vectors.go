package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fajrul/kontext/internal/observability"
)

// vectorSidecar records the index shape next to the database file so a
// restart with a different embedding dimension rebuilds instead of corrupting.
type vectorSidecar struct {
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Created   time.Time `json:"created"`
}

// initVectorIndex creates or reconciles the vec0 table against the sidecar.
func (s *Store) initVectorIndex(dbPath string) error {
	sidecarPath := dbPath + ".vec.json"

	if raw, err := os.ReadFile(sidecarPath); err == nil {
		var sc vectorSidecar
		if err := json.Unmarshal(raw, &sc); err != nil || sc.Dimension != s.dimension {
			s.logger.Warn().
				Int("recorded", sc.Dimension).
				Int("configured", s.dimension).
				Msg("Vector index dimension mismatch, rebuilding")
			if err := s.dropVectorIndex(); err != nil {
				return err
			}
		}
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension)
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	sc := vectorSidecar{
		Dimension: s.dimension,
		Metric:    "cosine",
		Created:   time.Now(),
	}
	raw, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal vector sidecar: %w", err)
	}
	if err := os.WriteFile(sidecarPath, raw, 0644); err != nil {
		return fmt.Errorf("failed to write vector sidecar: %w", err)
	}

	return nil
}

func (s *Store) dropVectorIndex() error {
	stmts := []string{
		"DROP TABLE IF EXISTS vectors",
		"DELETE FROM vector_meta",
		"UPDATE context_items SET vector_id = NULL",
		"UPDATE code_entities SET vector_id = NULL",
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to rebuild vector index: %w", err)
		}
	}
	return nil
}

// AllocateVectorID returns the stable numeric id for the artifact the metadata
// references, creating it on first sight. The same (kind, ref) always maps to
// the same id, which keeps the index and the relational rows consistent.
func (s *Store) AllocateVectorID(meta Meta) (int64, bool) {
	if meta == nil {
		return 0, false
	}

	metaRaw, err := EncodeMeta(meta)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode vector metadata")
		return 0, false
	}

	_, err = s.db.Exec(`
		INSERT INTO vector_meta (kind, ref_id, meta)
		VALUES (?, ?, ?)
		ON CONFLICT(kind, ref_id) DO UPDATE SET meta = excluded.meta
	`, meta.metaKind(), meta.refID(), string(metaRaw))
	if err != nil {
		s.logger.Warn().Err(err).Str("ref", meta.refID()).Msg("Failed to allocate vector id")
		return 0, false
	}

	var id int64
	err = s.db.QueryRow(
		"SELECT id FROM vector_meta WHERE kind = ? AND ref_id = ?",
		meta.metaKind(), meta.refID(),
	).Scan(&id)
	if err != nil {
		s.logger.Warn().Err(err).Str("ref", meta.refID()).Msg("Failed to read allocated vector id")
		return 0, false
	}

	return id, true
}

// SaveVector upserts a vector under the given id. The index never holds two
// vectors for one id: an existing row is replaced in place.
func (s *Store) SaveVector(id int64, vector []float32, meta Meta) bool {
	if len(vector) != s.dimension {
		s.logger.Error().
			Int("got", len(vector)).
			Int("want", s.dimension).
			Int64("vector", id).
			Msg("Vector dimension mismatch, refusing save")
		return false
	}

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		s.logger.Warn().Err(err).Int64("vector", id).Msg("Failed to marshal vector")
		return false
	}

	// Replace vs insert depending on whether the id is already indexed.
	var one int
	err = s.db.QueryRow("SELECT 1 FROM vectors WHERE rowid = ?", id).Scan(&one)
	if err == nil {
		if _, err := s.db.Exec("UPDATE vectors SET embedding = ? WHERE rowid = ?", string(vectorJSON), id); err != nil {
			s.logger.Warn().Err(err).Int64("vector", id).Msg("Failed to replace vector")
			return false
		}
	} else {
		if _, err := s.db.Exec("INSERT INTO vectors (rowid, embedding) VALUES (?, ?)", id, string(vectorJSON)); err != nil {
			s.logger.Warn().Err(err).Int64("vector", id).Msg("Failed to insert vector")
			return false
		}
	}

	if meta != nil {
		if metaRaw, err := EncodeMeta(meta); err == nil {
			_, err = s.db.Exec(`
				INSERT INTO vector_meta (id, kind, ref_id, meta) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, ref_id = excluded.ref_id, meta = excluded.meta
			`, id, meta.metaKind(), meta.refID(), string(metaRaw))
			if err != nil {
				s.logger.Warn().Err(err).Int64("vector", id).Msg("Failed to save vector metadata")
			}
		}
	}

	observability.RecordVectorSaved()
	return true
}

// VectorIDs returns all ids currently present in the index.
func (s *Store) VectorIDs() []int64 {
	rows, err := s.db.Query("SELECT rowid FROM vectors ORDER BY rowid")
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list vector ids")
		return []int64{}
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	if ids == nil {
		return []int64{}
	}
	return ids
}

// FindSimilarVectors returns the nearest neighbors by cosine distance,
// cross-referenced against both the item and entity tables since the caller
// does not know which one a given vector belongs to.
func (s *Store) FindSimilarVectors(query []float32, limit int) []VectorMatch {
	if len(query) != s.dimension {
		s.logger.Error().
			Int("got", len(query)).
			Int("want", s.dimension).
			Msg("Query vector dimension mismatch")
		return []VectorMatch{}
	}
	if limit <= 0 {
		limit = 10
	}

	start := time.Now()
	defer func() {
		observability.RecordSimilaritySearch(time.Since(start))
	}()

	queryJSON, err := json.Marshal(query)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to marshal query vector")
		return []VectorMatch{}
	}

	rows, err := s.db.Query(`
		SELECT rowid, vec_distance_cosine(embedding, ?) AS distance
		FROM vectors
		ORDER BY distance ASC
		LIMIT ?
	`, string(queryJSON), limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Vector similarity search failed")
		return []VectorMatch{}
	}
	defer rows.Close()

	type hit struct {
		id       int64
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan similarity hit")
			continue
		}
		hits = append(hits, h)
	}
	rows.Close()

	matches := make([]VectorMatch, 0, len(hits))
	for _, h := range hits {
		match := VectorMatch{
			VectorID:   h.id,
			Similarity: 1.0 - h.distance,
		}

		var metaRaw sql.NullString
		if err := s.db.QueryRow("SELECT meta FROM vector_meta WHERE id = ?", h.id).Scan(&metaRaw); err == nil && metaRaw.Valid {
			if meta, err := DecodeMeta([]byte(metaRaw.String)); err == nil {
				match.Meta = meta
			}
		}

		// The vector may belong to either table; try items first, then entities.
		if item, ok := s.itemByVectorID(h.id); ok {
			match.Item = &item
		} else if entity, ok := s.entityByVectorID(h.id); ok {
			match.Entity = &entity
		}

		matches = append(matches, match)
	}

	return matches
}

func (s *Store) itemByVectorID(vectorID int64) (ContextItem, bool) {
	rows, err := s.db.Query(`
		SELECT id, type, name, COALESCE(path, ''), COALESCE(language, ''), content,
			COALESCE(line_start, 0), COALESCE(line_end, 0), size, last_accessed,
			importance_score, vector_id, metadata
		FROM context_items
		WHERE vector_id = ?
	`, vectorID)
	if err != nil {
		return ContextItem{}, false
	}
	defer rows.Close()

	items := s.scanItems(rows)
	if len(items) == 0 {
		return ContextItem{}, false
	}
	return items[0], true
}

func (s *Store) entityByVectorID(vectorID int64) (CodeEntity, bool) {
	rows, err := s.db.Query(`
		SELECT id, name, type, file_path, code, first_seen, last_seen, frequency, vector_id
		FROM code_entities
		WHERE vector_id = ?
	`, vectorID)
	if err != nil {
		return CodeEntity{}, false
	}
	defer rows.Close()

	if !rows.Next() {
		return CodeEntity{}, false
	}
	entity, err := scanEntity(rows)
	if err != nil {
		return CodeEntity{}, false
	}
	return entity, true
}
