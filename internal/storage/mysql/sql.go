package mysql

// One table holds every collection. version is bumped on each update so the
// poller can fingerprint a collection without reading its documents.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
  seq         BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
  collection  VARCHAR(64)  NOT NULL,
  id          CHAR(36)     NOT NULL,
  fields      JSON         NOT NULL,
  version     BIGINT       NOT NULL DEFAULT 1,
  created_at  TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
  updated_at  TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
  UNIQUE KEY uq_documents_collection_id (collection, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`

const insertDocumentSQL = `
INSERT INTO documents (collection, id, fields)
VALUES (?, ?, ?)
`

const lockDocumentSQL = `
SELECT fields FROM documents
WHERE collection = ? AND id = ?
FOR UPDATE
`

const updateDocumentSQL = `
UPDATE documents
SET fields = ?, version = version + 1
WHERE collection = ? AND id = ?
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const listDocumentsSQL = `
SELECT id, fields FROM documents
WHERE collection = ?
ORDER BY seq
`

// listDocumentsByIDPrefix is completed with "(?,?,...) ORDER BY seq".
const listDocumentsByIDPrefix = `
SELECT id, fields FROM documents
WHERE collection = ? AND id IN `

// Changes on any document move at least one of the three values.
const fingerprintSQL = `
SELECT COUNT(*), COALESCE(SUM(version), 0), COALESCE(MAX(seq), 0)
FROM documents
WHERE collection = ?
`
