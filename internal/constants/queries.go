package constants

// Prepared statement names
const (
	StmtGetLastHash  = "get_last_hash"
	StmtInsertEntry  = "insert_entry"
	StmtListByTenant = "list_by_tenant"
)

var Queries = map[string]string{
	StmtGetLastHash: `
		SELECT entry_hash
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,

	StmtInsertEntry: `
		INSERT INTO audit_entries (
			id, tenant_id, actor_id, actor_type, action, resource_type,
			resource_id, correlation_id, ip, user_agent, details_json,
			prev_hash, entry_hash, created_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,

	StmtListByTenant: `
		SELECT id, tenant_id, actor_id, actor_type, action, resource_type,
			   resource_id, correlation_id, ip, user_agent, details_json,
			   prev_hash, entry_hash, created_at, version
		FROM audit_entries
		WHERE tenant_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at ASC, id ASC`,
}
