package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/andrebq/sambro/credential"
	"github.com/andrebq/sambro/internal/logutil"
	"github.com/andrebq/sambro/session"
	"github.com/andrebq/sambro/userdb"
	"github.com/google/uuid"
)

const (
	MinPasswordLen = 8
	MaxPasswordLen = 64
)

type (
	// UserStore is the persistence side of the pipeline, implemented by *userdb.DB
	UserStore interface {
		FindUserByEmail(ctx context.Context, email string) (userdb.User, error)
		FindUserByID(ctx context.Context, id string) (userdb.User, error)
		FindCredential(ctx context.Context, userID string) (userdb.Credential, error)
		InsertUserAndCredential(ctx context.Context, u userdb.User, c userdb.Credential) error
		ListUsers(ctx context.Context) ([]userdb.User, error)
	}

	Service struct {
		users    UserStore
		sessions session.Store
		hasher   *credential.Hasher

		decoyOnce sync.Once
		decoy     userdb.Credential
	}

	LoginResult struct {
		Session session.Session
		User    userdb.User
	}
)

func NewService(users UserStore, sessions session.Store, hasher *credential.Hasher) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
	}
}

// Register creates a user and its credential. Both rows are stored
// in a single transaction.
func (s *Service) Register(ctx context.Context, name, email, password string) (userdb.User, error) {
	log := logutil.GetOrDefault(ctx)
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if len(name) == 0 {
		return userdb.User{}, InvalidInput{Field: "name", Reason: "name is required"}
	}
	if !strings.Contains(email, "@") {
		return userdb.User{}, InvalidInput{Field: "email", Reason: "email must be a valid address"}
	}
	if err := checkPasswordLength(password); err != nil {
		return userdb.User{}, err
	}

	user := userdb.User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
	}
	salt, hash, err := s.hasher.Hash(ctx, []byte(password))
	if err != nil {
		log.Error().Err(err).Msg("Unable to hash password")
		return userdb.User{}, err
	}
	err = s.users.InsertUserAndCredential(ctx, user, userdb.Credential{UserID: user.ID, Salt: salt, Hash: hash})
	if err != nil {
		log.Error().Err(err).Str("user.id", user.ID).Msg("Unable to register user")
		return userdb.User{}, StorageFailure{Op: "register user", cause: err}
	}
	log.Info().Str("user.id", user.ID).Msg("User registered")
	return user, nil
}

func checkPasswordLength(password string) error {
	switch {
	case len(password) < MinPasswordLen:
		return InvalidInput{Field: "password", Reason: "password must be at least 8 characters long"}
	case len(password) > MaxPasswordLen:
		return InvalidInput{Field: "password", Reason: "password must be at most 64 characters long"}
	}
	return nil
}

// Login verifies the credentials for email and opens a new session.
//
// Unknown emails and wrong passwords both return Unauthenticated.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	log := logutil.GetOrDefault(ctx)
	email = strings.TrimSpace(email)
	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, userdb.UserNotFound{}) {
		// burn the same amount of cpu as a real verification
		s.verifyDecoy(ctx, password)
		log.Warn().Msg("Login attempt for unknown email")
		return LoginResult{}, Unauthenticated{}
	} else if err != nil {
		log.Error().Err(err).Msg("Unable to lookup user")
		return LoginResult{}, StorageFailure{Op: "lookup user", cause: err}
	}

	cred, err := s.users.FindCredential(ctx, user.ID)
	if errors.Is(err, userdb.CredentialNotFound{}) {
		log.Error().Str("user.id", user.ID).Msg("User without credential")
		return LoginResult{}, DataIntegrity{UserID: user.ID, cause: err}
	} else if err != nil {
		log.Error().Err(err).Str("user.id", user.ID).Msg("Unable to lookup credential")
		return LoginResult{}, StorageFailure{Op: "lookup credential", cause: err}
	}

	match, err := s.hasher.Verify(ctx, []byte(password), cred.Salt, cred.Hash)
	if errors.Is(err, credential.ErrMalformedHash) {
		log.Error().Err(err).Str("user.id", user.ID).Msg("Stored password hash is corrupt")
		return LoginResult{}, DataIntegrity{UserID: user.ID, cause: err}
	} else if err != nil {
		return LoginResult{}, err
	}
	if !match {
		log.Warn().Str("user.id", user.ID).Msg("Password mismatch")
		return LoginResult{}, Unauthenticated{}
	}

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Str("user.id", user.ID).Msg("Unable to create session")
		return LoginResult{}, err
	}
	log.Info().Str("user.id", user.ID).Time("session.expires", sess.Expires).Msg("Login succeeded")
	return LoginResult{Session: sess, User: user}, nil
}

func (s *Service) verifyDecoy(ctx context.Context, password string) {
	s.decoyOnce.Do(func() {
		// not bound to ctx, a cancelled caller must not leave the decoy empty
		salt, hash, err := s.hasher.Hash(context.Background(), []byte("decoy password"))
		if err == nil {
			s.decoy = userdb.Credential{Salt: salt, Hash: hash}
		}
	})
	if s.decoy.Hash == "" {
		return
	}
	s.hasher.Verify(ctx, []byte(password), s.decoy.Salt, s.decoy.Hash)
}

// Logout removes the session. It succeeds even if the session
// is already gone, but an empty id is reported as InvalidInput.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if len(sessionID) == 0 {
		return InvalidInput{Field: "session", Reason: "missing session cookie"}
	}
	s.sessions.Delete(ctx, sessionID)
	log := logutil.GetOrDefault(ctx)
	log.Info().Msg("Logout success")
	return nil
}

// Authenticate returns the live session identified by sessionID.
// It is the check behind every protected route.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (session.Session, error) {
	if len(sessionID) == 0 {
		return session.Session{}, Unauthenticated{}
	}
	sess, found := s.sessions.Get(ctx, sessionID)
	if !found {
		return session.Session{}, Unauthenticated{}
	}
	return sess, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]userdb.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, StorageFailure{Op: "list users", cause: err}
	}
	return users, nil
}

// User returns the user with the given id, userdb.UserNotFound is returned as is.
func (s *Service) User(ctx context.Context, id string) (userdb.User, error) {
	u, err := s.users.FindUserByID(ctx, id)
	if errors.Is(err, userdb.UserNotFound{}) {
		return userdb.User{}, err
	} else if err != nil {
		return userdb.User{}, StorageFailure{Op: "lookup user", cause: err}
	}
	return u, nil
}
