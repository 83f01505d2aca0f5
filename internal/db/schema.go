package db

import (
	"context"
	"database/sql"
	"fmt"
)

func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	schema := schemaPostgres
	if driver == DriverSQLite {
		schema = schemaSQLite
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exams (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_by BIGINT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	question_id BIGSERIAL PRIMARY KEY,
	exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	question_text TEXT NOT NULL,
	question_type TEXT NOT NULL,
	points DOUBLE PRECISION NOT NULL DEFAULT 1,
	correct_attempts INTEGER,
	p_value DOUBLE PRECISION,
	difficulty_score DOUBLE PRECISION,
	difficulty_level TEXT,
	discrimination_index DOUBLE PRECISION,
	discrimination_level TEXT,
	quality_score DOUBLE PRECISION,
	is_qualified BOOLEAN,
	total_attempts INTEGER,
	recommendations TEXT,
	last_analyzed TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_questions (
	exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL REFERENCES questions(question_id) ON DELETE CASCADE,
	order_index INTEGER NOT NULL,
	PRIMARY KEY (exam_id, question_id)
);

CREATE TABLE IF NOT EXISTS question_options (
	option_id BIGSERIAL PRIMARY KEY,
	question_id BIGINT NOT NULL REFERENCES questions(question_id) ON DELETE CASCADE,
	option_text TEXT NOT NULL,
	is_correct BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS question_answers (
	question_id BIGINT PRIMARY KEY REFERENCES questions(question_id) ON DELETE CASCADE,
	correct_answer TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_results (
	id BIGSERIAL PRIMARY KEY,
	exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	student_id BIGINT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	total_points DOUBLE PRECISION NOT NULL,
	percentage DOUBLE PRECISION NOT NULL,
	time_spent_seconds INTEGER NOT NULL DEFAULT 0,
	submitted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS student_answers (
	id BIGSERIAL PRIMARY KEY,
	exam_result_id BIGINT NOT NULL REFERENCES exam_results(id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL,
	answer_text TEXT,
	option_id BIGINT,
	is_correct BOOLEAN NOT NULL,
	points_earned DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exam_results_exam ON exam_results (exam_id);
CREATE INDEX IF NOT EXISTS idx_exam_results_student ON exam_results (student_id, submitted_at);
CREATE INDEX IF NOT EXISTS idx_student_answers_question ON student_answers (question_id);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS exams (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_by INTEGER,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	question_id INTEGER PRIMARY KEY AUTOINCREMENT,
	exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	question_text TEXT NOT NULL,
	question_type TEXT NOT NULL,
	points REAL NOT NULL DEFAULT 1,
	correct_attempts INTEGER,
	p_value REAL,
	difficulty_score REAL,
	difficulty_level TEXT,
	discrimination_index REAL,
	discrimination_level TEXT,
	quality_score REAL,
	is_qualified BOOLEAN,
	total_attempts INTEGER,
	recommendations TEXT,
	last_analyzed TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_questions (
	exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	question_id INTEGER NOT NULL REFERENCES questions(question_id) ON DELETE CASCADE,
	order_index INTEGER NOT NULL,
	PRIMARY KEY (exam_id, question_id)
);

CREATE TABLE IF NOT EXISTS question_options (
	option_id INTEGER PRIMARY KEY AUTOINCREMENT,
	question_id INTEGER NOT NULL REFERENCES questions(question_id) ON DELETE CASCADE,
	option_text TEXT NOT NULL,
	is_correct BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS question_answers (
	question_id INTEGER PRIMARY KEY REFERENCES questions(question_id) ON DELETE CASCADE,
	correct_answer TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	student_id INTEGER NOT NULL,
	score REAL NOT NULL,
	total_points REAL NOT NULL,
	percentage REAL NOT NULL,
	time_spent_seconds INTEGER NOT NULL DEFAULT 0,
	submitted_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS student_answers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exam_result_id INTEGER NOT NULL REFERENCES exam_results(id) ON DELETE CASCADE,
	question_id INTEGER NOT NULL,
	answer_text TEXT,
	option_id INTEGER,
	is_correct BOOLEAN NOT NULL,
	points_earned REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exam_results_exam ON exam_results (exam_id);
CREATE INDEX IF NOT EXISTS idx_exam_results_student ON exam_results (student_id, submitted_at);
CREATE INDEX IF NOT EXISTS idx_student_answers_question ON student_answers (question_id);
`
