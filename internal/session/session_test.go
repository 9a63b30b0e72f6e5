package session

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"ROLE_USER", RoleUser},
		{"ROLE_super_admin", RoleSuperAdmin},
		{"instructor", RoleInstructor},
		{" ROLE_ADMIN ", RoleAdmin},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRole(tt.in); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDestination(t *testing.T) {
	tests := []struct {
		role   Role
		pro    bool
		want   string
		wantOK bool
	}{
		{RoleSuperAdmin, false, RouteOrganizations, true},
		{RoleAdmin, true, RouteAdminDashboard, true},
		{RoleAdmin, false, RouteCourses, true},
		{RoleInstructor, false, RouteAttendance, true},
		{RoleUser, false, RouteStudent, true},
		{Role("GUEST"), false, RouteLogin, false},
	}
	for _, tt := range tests {
		got, ok := Destination(tt.role, tt.pro)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Destination(%s, %v) = %q, %v; want %q, %v", tt.role, tt.pro, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if s.Get().LoggedIn() {
		t.Fatal("new store should be logged out")
	}

	want := State{Token: "jwt", Role: RoleUser, User: &User{ID: 7, OrganizationProPlan: true}}
	if err := s.Set(want); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("session file mode = %o, want 600", perm)
		}
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	got := reopened.Get()
	if got.Token != "jwt" || got.Role != RoleUser || !got.ProPlan() || got.User.ID != 7 {
		t.Errorf("reopened state = %+v", got)
	}

	if err := reopened.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Clear() should remove the file")
	}
	if err := reopened.Clear(); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}

func TestStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if s.Get().LoggedIn() {
		t.Error("corrupt session should load as logged out")
	}
}

func TestSubscribe(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatal(err)
	}
	ch, unsubscribe := s.Subscribe()

	_ = s.Set(State{Token: "a", Role: RoleUser})
	_ = s.Set(State{Token: "b", Role: RoleUser})

	select {
	case st := <-ch:
		if st.Token != "b" {
			t.Errorf("subscriber got %q, want newest state", st.Token)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	_ = s.Clear()
	if st := <-ch; st.LoggedIn() {
		t.Error("Clear() should notify a logged-out state")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	_ = s.Set(State{Token: "c"})
}
