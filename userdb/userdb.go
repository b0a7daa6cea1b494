package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type (
	// DB holds users and their password hashes.
	DB struct {
		db *sql.DB
	}

	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Credential struct {
		UserID string
		Salt   string
		Hash   string
	}
)

func openDatabase(ctx context.Context, file string) (*sql.DB, error) {
	err := os.MkdirAll(filepath.Dir(file), 0755)
	if err != nil {
		return nil, fmt.Errorf("unable to create directory to store %v, cause %w", file, err)
	}
	connstr := fmt.Sprintf("file:%v?_journal=wal&_fk=true&_busy_timeout=5000&mode=rwc", file)
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v, cause %v", file, err)
	}
	// sqlite serializes writers anyway, a single connection makes
	// every call go through the same channel in arrival order
	conn.SetMaxOpenConns(1)
	err = conn.PingContext(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping database %v, cause %v", file, err)
	}
	return conn, nil
}

// Open opens (or creates) the database at file and makes sure
// the schema exists.
func Open(ctx context.Context, file string) (*DB, error) {
	conn, err := openDatabase(ctx, file)
	if err != nil {
		return nil, err
	}
	d := &DB{db: conn}
	err = d.init(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to init database %v, cause %v", file, err)
	}
	return d, nil
}

// FindUserByEmail performs a case-insensitive lookup, email is the login name.
func (d *DB) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := d.db.QueryRowContext(ctx, `select id, name, email from users where email = ? collate nocase limit 1`, email).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, UserNotFound{}
	} else if err != nil {
		return User{}, fmt.Errorf("unable to lookup user by email, cause %w", err)
	}
	return u, nil
}

func (d *DB) FindUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := d.db.QueryRowContext(ctx, `select id, name, email from users where id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, UserNotFound{}
	} else if err != nil {
		return User{}, fmt.Errorf("unable to lookup user %v, cause %w", id, err)
	}
	return u, nil
}

func (d *DB) FindCredential(ctx context.Context, userID string) (Credential, error) {
	c := Credential{UserID: userID}
	err := d.db.QueryRowContext(ctx, `select salt, hash from passwords where userid = ?`, userID).
		Scan(&c.Salt, &c.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, CredentialNotFound{}
	} else if err != nil {
		return Credential{}, fmt.Errorf("unable to lookup credential for user %v, cause %w", userID, err)
	}
	return c, nil
}

// InsertUserAndCredential stores both rows or none of them.
func (d *DB) InsertUserAndCredential(ctx context.Context, u User, c Credential) (err error) {
	if c.UserID != u.ID {
		return fmt.Errorf("credential belongs to %v not to %v", c.UserID, u.ID)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	_, err = tx.ExecContext(ctx, `insert into users(id, name, email) values (?, ?, ?)`, u.ID, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("unable to insert user, cause %w", err)
	}
	_, err = tx.ExecContext(ctx, `insert into passwords(userid, salt, hash) values (?, ?, ?)`, c.UserID, c.Salt, c.Hash)
	if err != nil {
		return fmt.Errorf("unable to insert credential, cause %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("unable to commit user registration, cause %w", err)
	}
	return nil
}

func (d *DB) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := d.db.QueryContext(ctx, `select id, name, email from users order by email asc`)
	if err != nil {
		return nil, fmt.Errorf("unable to list users, cause %w", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		err = rows.Scan(&u.ID, &u.Name, &u.Email)
		if err != nil {
			return nil, fmt.Errorf("unable to scan user, cause %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (d *DB) init(ctx context.Context) error {
	for _, cmd := range []string{
		`create table if not exists users(
			id text not null primary key,
			name text not null,
			email text not null collate nocase
		)`,
		`create unique index if not exists uidx_users_email
			on users(email collate nocase)`,
		`create table if not exists passwords(
			userid text not null primary key,
			salt text not null,
			hash text not null,
			foreign key (userid) references users(id)
		)`,
	} {
		_, err := d.db.ExecContext(ctx, cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
