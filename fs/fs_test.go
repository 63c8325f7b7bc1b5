package appfs

import (
	"io/fs"
	"testing"
)

func TestFS(t *testing.T) {
	paths := []string{
		"assets/common-passwords.txt.gz",
		"assets/templates/email/_base.txt",
		"assets/templates/email/_base.gohtml",
		"assets/templates/email/notification.txt",
		"assets/templates/email/password_reset.gohtml",
		"migrations/00001_create_users.sql",
	}
	for _, p := range paths {
		if _, err := fs.Stat(FS, p); err != nil {
			t.Errorf("fs.Stat(%q) error = %v", p, err)
		}
	}
}
