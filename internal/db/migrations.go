package db

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "create users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT UNIQUE NOT NULL,
				password_hash TEXT NOT NULL,
				is_admin BOOLEAN NOT NULL DEFAULT 0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)
		`,
	},
	{
		name: "create areas table",
		sql: `
			CREATE TABLE IF NOT EXISTS areas (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				topic TEXT NOT NULL,
				is_secret BOOLEAN NOT NULL DEFAULT 0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)
		`,
	},
	{
		name: "create secret area privileges table",
		sql: `
			CREATE TABLE IF NOT EXISTS secret_area_privileges (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				area_id INTEGER NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				UNIQUE (area_id, user_id)
			)
		`,
	},
	{
		name: "create threads table",
		sql: `
			CREATE TABLE IF NOT EXISTS threads (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				area_id INTEGER NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE RESTRICT
			);
			CREATE INDEX IF NOT EXISTS idx_threads_area ON threads(area_id);
		`,
	},
	{
		name: "create messages table",
		sql: `
			CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				thread_id INTEGER NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
				sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
				text TEXT NOT NULL,
				image_url TEXT,
				sent_time DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, sent_time);
		`,
	},
	{
		name: "create notifications table",
		sql: `
			CREATE TABLE IF NOT EXISTS notifications (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				thread_id INTEGER NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
				sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				message TEXT NOT NULL,
				sent_time DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, id);
		`,
	},
	{
		name: "create sessions table",
		sql: `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				expires_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at);
		`,
	},
	{
		name: "index message images",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_messages_image ON messages(image_url) WHERE image_url IS NOT NULL;
		`,
	},
}
