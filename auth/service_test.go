package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andrebq/sambro/internal/testutil"
	"github.com/andrebq/sambro/session"
	"github.com/andrebq/sambro/userdb"
	"github.com/stretchr/testify/require"
)

type clock struct {
	sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.Lock()
	c.now = c.now.Add(d)
	c.Unlock()
}

type brokenStore struct {
	UserStore
	credential  *userdb.Credential
	credErr     error
	insertErr   error
	lookupErr   error
	insertCalls int
}

func (b *brokenStore) FindUserByEmail(ctx context.Context, email string) (userdb.User, error) {
	if b.lookupErr != nil {
		return userdb.User{}, b.lookupErr
	}
	return b.UserStore.FindUserByEmail(ctx, email)
}

func (b *brokenStore) FindCredential(ctx context.Context, userID string) (userdb.Credential, error) {
	if b.credErr != nil {
		return userdb.Credential{}, b.credErr
	}
	if b.credential != nil {
		return *b.credential, nil
	}
	return b.UserStore.FindCredential(ctx, userID)
}

func (b *brokenStore) InsertUserAndCredential(ctx context.Context, u userdb.User, c userdb.Credential) error {
	b.insertCalls++
	if b.insertErr != nil {
		return b.insertErr
	}
	return b.UserStore.InsertUserAndCredential(ctx, u, c)
}

func acquireService(t *testing.T, wrap func(UserStore) UserStore) (*Service, session.Store, *clock) {
	ctx := context.Background()
	db, cleanup := testutil.AcquireUserDB(ctx, t)
	t.Cleanup(cleanup)
	c := &clock{now: time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)}
	sessions := session.NewShardedStore(session.Options{Now: c.Now, Capacity: session.DefaultCapacity})
	var users UserStore = db
	if wrap != nil {
		users = wrap(db)
	}
	return NewService(users, sessions, testutil.FastHasher()), sessions, c
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	svc, sessions, c := acquireService(t, nil)
	alice, err := svc.Register(ctx, "alice", "alice@x.com", "longpassword1")
	require.NoError(t, err)
	require.NotEmpty(t, alice.ID)
	require.Equal(t, "alice", alice.Name)
	require.Equal(t, "alice@x.com", alice.Email)

	res, err := svc.Login(ctx, "ALICE@X.com", "longpassword1")
	require.NoError(t, err)
	require.NotEmpty(t, res.Session.ID)
	require.Equal(t, alice.ID, res.Session.UserID)
	require.Equal(t, alice, res.User)
	require.True(t, res.Session.Expires.Equal(c.Now().Add(time.Hour)))

	sess, err := svc.Authenticate(ctx, res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, alice.ID, sess.UserID)
	require.Equal(t, 1, sessions.Len())
}

func TestPasswordLengthPolicy(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		password string
		valid    bool
	}{
		{"", false},
		{"1234567", false},
		{"12345678", true},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{strings.Repeat("a", 200), false},
	} {
		store := &brokenStore{}
		svc, _, _ := acquireService(t, func(u UserStore) UserStore {
			store.UserStore = u
			return store
		})
		_, err := svc.Register(ctx, "bob", "bob@x.com", tc.password)
		if tc.valid {
			require.NoError(t, err, "password of length %v", len(tc.password))
			continue
		}
		var invalid InvalidInput
		require.True(t, errors.As(err, &invalid), "password of length %v should be rejected, got %v", len(tc.password), err)
		require.Equal(t, "password", invalid.Field)
		require.Equal(t, 0, store.insertCalls, "nothing should reach the database")
		users, err := svc.ListUsers(ctx)
		require.NoError(t, err)
		require.Empty(t, users)
	}
}

func TestRegisterValidatesIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := acquireService(t, nil)
	_, err := svc.Register(ctx, "  ", "bob@x.com", "longpassword1")
	require.ErrorIs(t, err, InvalidInput{Field: "name", Reason: "name is required"})
	_, err = svc.Register(ctx, "bob", "not-an-email", "longpassword1")
	var invalid InvalidInput
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, "email", invalid.Field)
}

func TestRegisterStorageFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	svc, _, _ := acquireService(t, func(u UserStore) UserStore {
		return &brokenStore{UserStore: u, insertErr: boom}
	})
	_, err := svc.Register(ctx, "bob", "bob@x.com", "longpassword1")
	require.ErrorIs(t, err, StorageFailure{})
	require.ErrorIs(t, err, boom)
}

func TestDuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := acquireService(t, nil)
	_, err := svc.Register(ctx, "bob", "bob@x.com", "longpassword1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bobby", "BOB@x.com", "longpassword2")
	require.ErrorIs(t, err, StorageFailure{Op: "register user"})
	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := acquireService(t, nil)
	_, err := svc.Register(ctx, "alice", "alice@x.com", "longpassword1")
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, "alice@x.com", "longpassword2")
	_, unknownEmail := svc.Login(ctx, "mallory@x.com", "longpassword1")
	require.Equal(t, Unauthenticated{}, wrongPassword)
	require.Equal(t, Unauthenticated{}, unknownEmail)
	require.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	require.Equal(t, 0, sessions.Len(), "failed logins must not create sessions")
}

func TestLoginDataIntegrity(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]*brokenStore{
		"missing credential": {credErr: userdb.CredentialNotFound{}},
		"corrupt hash":       {credential: &userdb.Credential{Salt: "abc", Hash: "$argon2id$garbage"}},
	} {
		store := store
		svc, sessions, _ := acquireService(t, func(u UserStore) UserStore {
			store.UserStore = u
			return store
		})
		user, err := svc.Register(ctx, "alice", "alice@x.com", "longpassword1")
		require.NoError(t, err)
		_, err = svc.Login(ctx, "alice@x.com", "longpassword1")
		require.ErrorIs(t, err, DataIntegrity{UserID: user.ID}, name)
		require.False(t, errors.Is(err, Unauthenticated{}), name)
		require.Equal(t, 0, sessions.Len(), name)
	}
}

func TestLoginStorageFailure(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := acquireService(t, func(u UserStore) UserStore {
		return &brokenStore{UserStore: u, lookupErr: errors.New("database is locked")}
	})
	_, err := svc.Login(ctx, "alice@x.com", "longpassword1")
	require.ErrorIs(t, err, StorageFailure{Op: "lookup user"})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := acquireService(t, nil)
	_, err := svc.Register(ctx, "alice", "alice@x.com", "longpassword1")
	require.NoError(t, err)
	res, err := svc.Login(ctx, "alice@x.com", "longpassword1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Session.ID))
	require.NoError(t, svc.Logout(ctx, res.Session.ID), "logout is idempotent")
	require.Equal(t, 0, sessions.Len())

	_, err = svc.Authenticate(ctx, res.Session.ID)
	require.ErrorIs(t, err, Unauthenticated{})

	err = svc.Logout(ctx, "")
	var invalid InvalidInput
	require.True(t, errors.As(err, &invalid))
}

func TestAuthenticateExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, c := acquireService(t, nil)
	_, err := svc.Register(ctx, "alice", "alice@x.com", "longpassword1")
	require.NoError(t, err)
	res, err := svc.Login(ctx, "alice@x.com", "longpassword1")
	require.NoError(t, err)

	c.Advance(time.Hour)
	_, err = svc.Authenticate(ctx, res.Session.ID)
	require.ErrorIs(t, err, Unauthenticated{})
	_, err = svc.Authenticate(ctx, "")
	require.ErrorIs(t, err, Unauthenticated{})
}

func TestManySessionsPerUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := acquireService(t, nil)
	_, err := svc.Register(ctx, "alice", "alice@x.com", "longpassword1")
	require.NoError(t, err)

	const n = 8
	results := make(chan LoginResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Login(ctx, "alice@x.com", "longpassword1")
			if err != nil {
				t.Error(err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	ids := map[string]bool{}
	for res := range results {
		ids[res.Session.ID] = true
		_, err := svc.Authenticate(ctx, res.Session.ID)
		require.NoError(t, err)
	}
	require.Len(t, ids, n)
}

func TestUserLookup(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := acquireService(t, nil)
	alice, err := svc.Register(ctx, "alice", "alice@x.com", "longpassword1")
	require.NoError(t, err)
	u, err := svc.User(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, alice, u)
	_, err = svc.User(ctx, "nobody")
	require.ErrorIs(t, err, userdb.UserNotFound{})
}

func TestDecoyIgnoresCallerContext(t *testing.T) {
	svc, _, _ := acquireService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.verifyDecoy(ctx, "longpassword1")
	require.NotEmpty(t, svc.decoy.Hash, "a cancelled first caller must still produce the decoy")
}
