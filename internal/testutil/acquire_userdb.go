package testutil

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/andrebq/sambro/credential"
	"github.com/andrebq/sambro/userdb"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}
)

// AcquireUserDB opens an empty user database in a temporary directory.
func AcquireUserDB(ctx context.Context, t TestLog) (*userdb.DB, func()) {
	dir, err := ioutil.TempDir("", "sambro-tests")
	if err != nil {
		t.Fatal(err)
	}
	db, err := userdb.Open(ctx, filepath.Join(dir, "users"))
	if err != nil {
		t.Fatal(err)
	}
	return db, func() {
		err := db.Close()
		if err != nil {
			t.Log("unable to close user database", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

// FastHasher is an argon2id hasher cheap enough for unit tests.
func FastHasher() *credential.Hasher {
	return credential.NewHasher(credential.Params{
		Memory:  64,
		Time:    1,
		Threads: 1,
		KeyLen:  32,
		SaltLen: 16,
	}, 0)
}
