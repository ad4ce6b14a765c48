package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: migrationV1,
	}
}

const migrationV1 = `
	CREATE TABLE IF NOT EXISTS flows (
		id UUID PRIMARY KEY,
		flow_group_id UUID NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		scope TEXT NOT NULL,
		tenant_id TEXT NOT NULL DEFAULT '',
		categories JSONB NOT NULL DEFAULT '[]',
		metadata JSONB,
		owner TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		published_at TIMESTAMP WITH TIME ZONE,
		deleted_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_flows_group ON flows (flow_group_id);

	-- Single published flow per scope slot, enforced at write time.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_flows_single_published
		ON flows (scope, tenant_id)
		WHERE status = 'published' AND deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS overrides (
		id UUID PRIMARY KEY,
		flow_id UUID NOT NULL,
		tenant_id TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		gating JSONB NOT NULL DEFAULT '{}',
		activation JSONB NOT NULL DEFAULT '{}',
		task_overrides JSONB NOT NULL DEFAULT '[]',
		integration_preference TEXT NOT NULL DEFAULT '',
		task_order JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (flow_id, tenant_id)
	);

	CREATE TABLE IF NOT EXISTS task_statuses (
		flow_id UUID NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (flow_id, tenant_id, user_id, task_id)
	);

	CREATE INDEX IF NOT EXISTS idx_task_statuses_tenant_user ON task_statuses (tenant_id, user_id);

	CREATE TABLE IF NOT EXISTS user_states (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		wizard_shown_at TIMESTAMP WITH TIME ZONE,
		dismissed_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (tenant_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS workspace_states (
		tenant_id TEXT PRIMARY KEY,
		activated_at TIMESTAMP WITH TIME ZONE,
		completed_at TIMESTAMP WITH TIME ZONE,
		integration_preference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interaction_events (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		flow_id UUID NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		task_id TEXT NOT NULL DEFAULT '',
		time_spent_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interaction_events_flow ON interaction_events (flow_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_interaction_events_tenant_user ON interaction_events (tenant_id, user_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		action TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		detail JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log (tenant_id, created_at);
`
