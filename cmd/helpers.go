package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/greenledger/ghgstage/internal/utils"
	"github.com/greenledger/ghgstage/pkg/factor"
	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/hierarchy"
	"github.com/greenledger/ghgstage/pkg/lookup"
	"github.com/greenledger/ghgstage/pkg/notify"
	"github.com/greenledger/ghgstage/pkg/selection"
	"github.com/greenledger/ghgstage/pkg/session"
	"github.com/greenledger/ghgstage/pkg/staging"
	"github.com/greenledger/ghgstage/pkg/storage"
	"github.com/greenledger/ghgstage/pkg/whttp"
)

func notifier() notify.Notifier {
	return notify.LogNotifier{Log: utils.Log}
}

// newClient builds the lookup service client from config.
func newClient(cmd *cobra.Command) (*lookup.Client, error) {
	proxy, _ := cmd.Flags().GetString("proxy")
	timeout, err := time.ParseDuration(viper.GetString("api.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid api.timeout: %w", err)
	}
	hc, err := whttp.NewClient(whttp.ClientConfig{
		Retries: viper.GetInt("api.retries"),
		Timeout: timeout,
		Proxy:   proxy,
	})
	if err != nil {
		return nil, err
	}
	return lookup.NewClient(viper.GetString("api.base_url"),
		lookup.WithHTTPClient(hc),
		lookup.WithToken(viper.GetString("api.token")),
		lookup.WithLegacySentinel(viper.GetBool("api.legacy_sentinel")),
	)
}

// loadRoster reads the team list from config. No team means a nil roster.
func loadRoster() (*session.Roster, error) {
	var members []session.Member
	if err := viper.UnmarshalKey("team", &members); err != nil {
		return nil, fmt.Errorf("invalid team config: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	for i := range members {
		role, err := session.ParseRole(string(members[i].Role))
		if err != nil {
			return nil, fmt.Errorf("team member %s: %w", members[i].ID, err)
		}
		members[i].Role = role
	}
	return session.NewRoster(members...)
}

func newSession(cmd *cobra.Command) (session.Session, error) {
	roster, err := loadRoster()
	if err != nil {
		return session.Session{}, err
	}
	project := viper.GetString("session.project_id")
	if f := cmd.Flags().Lookup("project"); f != nil && f.Changed {
		project = f.Value.String()
	}
	return session.New(viper.GetString("session.user_id"), project, roster), nil
}

func dbPathFrom(cmd *cobra.Command) (string, error) {
	p, _ := cmd.Flags().GetString("dbpath")
	abs, err := utils.GetAbsDBPath(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// ledger is the local SQLite ledger of one project loaded into a Buffer.
type ledger struct {
	db     *storage.DB
	lock   *utils.LedgerLock
	buf    *staging.Buffer
	sess   session.Session
	client *lookup.Client
}

// openLedger loads the session project's rows. Writers hold the file lock
// until close.
func openLedger(cmd *cobra.Command, write bool) (*ledger, error) {
	sess, err := newSession(cmd)
	if err != nil {
		return nil, err
	}
	if sess.ProjectID == "" {
		return nil, fmt.Errorf("%w: set session.project_id or pass --project", session.ErrNoProject)
	}
	client, err := newClient(cmd)
	if err != nil {
		return nil, err
	}
	path, err := dbPathFrom(cmd)
	if err != nil {
		return nil, err
	}

	l := &ledger{sess: sess, client: client}
	if write {
		if l.lock, err = utils.NewLedgerLock(path, sess.ProjectID); err != nil {
			return nil, err
		}
		if err := l.lock.Lock(cmd.Context()); err != nil {
			return nil, err
		}
	}
	if l.db, err = storage.Open(path); err != nil {
		l.close()
		return nil, err
	}
	rows, err := l.db.ListRows(cmd.Context(), sess.ProjectID)
	if err != nil {
		l.close()
		return nil, err
	}
	l.buf = staging.New(sess, client, notifier(), staging.WithRows(rows))
	return l, nil
}

// save writes every scope of the buffer back and prints what changed.
func (l *ledger) save(ctx context.Context) error {
	for _, scope := range ghg.AllScopes {
		changes, err := l.db.UpsertRows(ctx, l.sess.ProjectID, scope, l.buf.Rows(scope))
		if err != nil {
			return err
		}
		printChanges(changes)
	}
	return nil
}

func (l *ledger) close() {
	if l.db != nil {
		_ = l.db.Close()
	}
	if l.lock != nil {
		if err := l.lock.Unlock(); err != nil {
			utils.Log.Warn(err)
		}
	}
}

func printChanges(changes []storage.Change) {
	for _, c := range changes {
		ts := c.OccurredAt.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %-9s  %s  %s  %s  %s\n", ts, c.ChangeType, c.ProjectID, c.Scope, c.RowID, c.Activity)
	}
}

// addPathFlags registers the flags that pick a path through the hierarchy.
func addPathFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("scope", "s", 1, "GHG scope (1, 2 or 3)")
	cmd.Flags().String("database", "", "Emission factor database (default from config)")
	cmd.Flags().String("main", "", "Main category id or name")
	cmd.Flags().String("sub", "", "Subcategory")
	cmd.Flags().String("activity", "", "Activity")
	cmd.Flags().String("sel1", "", "Selection 1")
	cmd.Flags().String("sel2", "", "Selection 2")
}

var pathFlagNames = [ghg.LevelCount]string{"main", "sub", "activity", "sel1", "sel2"}

func pathFlagsSet(cmd *cobra.Command) bool {
	for _, name := range pathFlagNames {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// seedPathFlags fills the unset scope and database flags and the unset path
// flags above the deepest one given from path, so a single level can be
// re-chosen without repeating its ancestors.
func seedPathFlags(cmd *cobra.Command, path ghg.Path) error {
	if !cmd.Flags().Changed("scope") {
		if err := cmd.Flags().Set("scope", strconv.Itoa(int(path.Scope))); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("database") {
		if err := cmd.Flags().Set("database", string(path.Database)); err != nil {
			return err
		}
	}
	deepest := -1
	for i, name := range pathFlagNames {
		if cmd.Flags().Changed(name) {
			deepest = i
		}
	}
	for i := 0; i < deepest; i++ {
		if cmd.Flags().Changed(pathFlagNames[i]) {
			continue
		}
		choice := path.Choice(ghg.Level(i))
		if choice.IsZero() {
			break
		}
		if err := cmd.Flags().Set(pathFlagNames[i], choice.Value()); err != nil {
			return err
		}
	}
	return nil
}

// walkPath runs a selection machine through the path flags, stopping at the
// first one left empty. Levels filled in automatically may still be given
// explicitly as "N/A".
func walkPath(cmd *cobra.Command, client lookup.Service) (*selection.Machine, error) {
	ctx := cmd.Context()
	scopeN, _ := cmd.Flags().GetInt("scope")
	scope := ghg.Scope(scopeN)
	if !scope.Valid() {
		return nil, fmt.Errorf("invalid scope %d", scopeN)
	}
	dbName, _ := cmd.Flags().GetString("database")
	if dbName == "" {
		dbName = viper.GetString("database")
	}
	db, err := ghg.ParseDatabase(dbName)
	if err != nil {
		return nil, err
	}

	n := notifier()
	m := selection.New(scope, db, hierarchy.New(client, n), factor.NewResolver(client, n))
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	for i, name := range pathFlagNames {
		value, _ := cmd.Flags().GetString(name)
		if value == "" {
			break
		}
		level := ghg.Level(i)
		if current := m.Path().Choice(level); current.NotApplicable && strings.EqualFold(value, ghg.NotApplicableLabel) {
			continue
		}
		if err := m.Select(ctx, level, value); err != nil {
			return nil, fmt.Errorf("%w (options: %s)", err, strings.Join(m.Options(level).Labels(), ", "))
		}
	}
	return m, nil
}

// confirm asks a yes/no question when stdin is a terminal. Without a
// terminal the answer is the default.
func confirm(question string, def bool) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return def
	}
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Printf("%s %s ", question, hint)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
