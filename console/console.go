// Package console is the menu-driven terminal shell for race management.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"

	"github.com/padraicbc/trms/config"
	"github.com/padraicbc/trms/db"
	"github.com/padraicbc/trms/models"
)

// Version is shown in the banner.
const Version = "1.0.0"

// RaceStore is the race accessor the console drives.
type RaceStore interface {
	Create(ctx context.Context, r *models.Race) (int64, bool)
	GetAll(ctx context.Context) []models.Race
	GetByID(ctx context.Context, id int64) *models.Race
	Update(ctx context.Context, id int64, r *models.Race) bool
	Delete(ctx context.Context, id int64) bool
	GetUpcoming(ctx context.Context) []models.Race
}

// Database reports on the database binding and can rebind it to new settings.
type Database interface {
	Status(ctx context.Context) db.Status
	TestConnection(ctx context.Context) bool
	ServerVersion(ctx context.Context) (string, error)
	Reconfigure(ctx context.Context, cfg config.Database) error
}

var _ Database = (*db.Manager)(nil)

// errStop ends every loop: input closed or the context was cancelled.
var errStop = errors.New("console stopped")

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Padding(0, 2).
			Bold(true)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Console runs the menu loop against a RaceStore.
type Console struct {
	races    RaceStore
	database Database
	cfg      *config.Config
	log      *zap.Logger
	in       io.Reader
	out      io.Writer
	now      func() time.Time

	lines   chan string
	done    chan struct{} // closed when Run returns
	stopped chan struct{} // closed when the input reader exits
}

// New returns a Console reading from in and writing to out. cfg is the
// loaded configuration the Settings menu edits.
func New(races RaceStore, database Database, cfg *config.Config, log *zap.Logger, in io.Reader, out io.Writer) *Console {
	return &Console{
		races:    races,
		database: database,
		cfg:      cfg,
		log:      log,
		in:       in,
		out:      out,
		now:      time.Now,
	}
}

// Run shows the banner and serves the main menu until the user exits, input
// ends or ctx is cancelled. Panics are logged and end the loop.
func (c *Console) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("console panic", zap.Any("panic", r), zap.Stack("stack"))
			c.println("\nApplication error:", r)
		}
		c.log.Info("console shutdown")
	}()

	st := c.database.Status(ctx)
	c.log.Info("console starting", zap.String("database", st.Kind()), zap.String("host", st.Host))
	if !c.database.TestConnection(ctx) {
		c.println("Error: cannot connect to database!")
		c.println("Attempted connection to:", st.Host)
		return
	}

	c.lines = make(chan string)
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})
	defer close(c.done)
	go c.scan(c.lines, c.done, c.stopped)

	c.banner(st)
	if err := c.mainLoop(ctx); errors.Is(err, errStop) {
		c.println("\n\nGoodbye!")
	}
}

// scan feeds input lines to lines until input ends or done is closed.
func (c *Console) scan(lines chan<- string, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	defer close(lines)
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-done:
			return
		}
	}
}

func (c *Console) banner(st db.Status) {
	text := strings.Join([]string{
		"TERS: The Event Registration Solution",
		"Console Management Interface v" + Version,
		fmt.Sprintf("Database: %s - %s", st.Kind(), st.Host),
		"Ready to manage race registrations!",
	}, "\n")
	c.println(bannerStyle.Render(text))
}

// mainLoop returns nil when the user picks exit and errStop otherwise.
func (c *Console) mainLoop(ctx context.Context) error {
	for {
		c.println()
		c.println(headingStyle.Render("MAIN MENU"))
		c.println("1. Race Management")
		c.println("2. Participant Registration")
		c.println("3. Registration Reports")
		c.println("4. Payment Management")
		c.println("5. Email Communications")
		c.println("6. Settings")
		c.println("0. Exit")

		choice, err := c.prompt(ctx, "\nSelect option: ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			if err := c.raceMenu(ctx); err != nil {
				return err
			}
		case "2":
			c.println("Participant registration - Coming soon!")
		case "3":
			c.println("Registration reports - Coming soon!")
		case "4":
			c.println("Payment management - Coming soon!")
		case "5":
			c.println("Email communications - Coming soon!")
		case "6":
			if err := c.settings(ctx); err != nil {
				return err
			}
		case "0":
			c.println("\nThank you for using TERS!")
			return nil
		default:
			c.println("Invalid option")
		}
	}
}

func (c *Console) raceMenu(ctx context.Context) error {
	for {
		c.println()
		c.println(headingStyle.Render("RACE MANAGEMENT"))
		c.println("1. Create New Race")
		c.println("2. View All Races")
		c.println("3. Edit Race")
		c.println("4. Delete Race")
		c.println("5. Upcoming Races")
		c.println("0. Back")

		choice, err := c.prompt(ctx, "\nSelect option: ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			err = c.createRace(ctx)
		case "2":
			c.viewAll(ctx)
		case "3":
			err = c.editRace(ctx)
		case "4":
			err = c.deleteRace(ctx)
		case "5":
			c.viewUpcoming(ctx)
		case "0":
			return nil
		default:
			c.println("Invalid option")
		}
		if err != nil {
			return err
		}
	}
}

// createRace collects every field before building the race so a bad value
// is reported once at the end.
func (c *Console) createRace(ctx context.Context) error {
	c.println("\nCREATE NEW RACE")

	fields := []string{
		"Race Name: ",
		"Description: ",
		"Date (YYYY-MM-DD): ",
		"Time (HH:MM) or Enter to skip: ",
		"Venue: ",
		"Type (" + typeNames() + "): ",
		"Distances: ",
		"Registration Limit (0 for unlimited): ",
		"Entry Fee: $",
	}
	answers := make([]string, len(fields))
	for i, f := range fields {
		a, err := c.prompt(ctx, f)
		if err != nil {
			return err
		}
		answers[i] = a
	}

	race, err := buildRace(answers)
	if err != nil {
		c.println("\nError:", err)
		return nil
	}
	if id, ok := c.races.Create(ctx, race); ok {
		c.printf("\nRace created successfully! ID: %d\n", id)
	} else {
		c.println("\nFailed to create race")
	}
	return nil
}

func buildRace(a []string) (*models.Race, error) {
	date, err := models.ParseDate(a[2])
	if err != nil {
		return nil, err
	}
	in := models.RaceInput{
		Name:        a[0],
		Description: a[1],
		Date:        date,
		Time:        a[3],
		Venue:       a[4],
		Type:        a[5],
		Distances:   a[6],
	}
	if a[7] != "" {
		n, err := strconv.Atoi(a[7])
		if err != nil {
			return nil, fmt.Errorf("registration limit %q is not a whole number", a[7])
		}
		if n != 0 {
			in.RegistrationLimit = &n
		}
	}
	if a[8] != "" {
		fee, err := strconv.ParseFloat(a[8], 64)
		if err != nil {
			return nil, fmt.Errorf("entry fee %q is not a number", a[8])
		}
		in.EntryFee = &fee
	}
	return models.NewRace(in)
}

func (c *Console) viewAll(ctx context.Context) {
	races := c.races.GetAll(ctx)
	if len(races) == 0 {
		c.println("\nNo races found")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Name", "Date", "Venue", "Type")
	for _, r := range races {
		t.Row(
			strconv.FormatInt(r.ID, 10),
			truncate(r.Name, 28),
			r.DateString(),
			truncate(r.VenueOr("TBD"), 18),
			string(r.Type),
		)
	}
	c.println("\nALL RACES")
	c.println(t.String())
}

func (c *Console) viewUpcoming(ctx context.Context) {
	races := c.races.GetUpcoming(ctx)
	if len(races) == 0 {
		c.println("\nNo upcoming races")
		return
	}

	c.println("\nUPCOMING RACES")
	today := c.now()
	for _, r := range races {
		fee := 0.0
		if r.EntryFee != nil {
			fee = *r.EntryFee
		}
		c.printf("\n%s\n", r.Name)
		c.printf("   %s (%d days)\n", r.DateString(), r.DaysUntil(today))
		c.printf("   %s\n", r.VenueOr("TBD"))
		c.printf("   $%.2f\n", fee)
	}
}

func (c *Console) editRace(ctx context.Context) error {
	race, id, err := c.lookup(ctx, "\nEnter Race ID to edit: ")
	if err != nil || race == nil {
		return err
	}

	c.printf("\nEditing: %s\n", race.Name)
	c.println("Press Enter to keep current value")
	name, err := c.prompt(ctx, fmt.Sprintf("Name [%s]: ", race.Name))
	if err != nil {
		return err
	}
	venue, err := c.prompt(ctx, fmt.Sprintf("Venue [%s]: ", race.VenueOr("")))
	if err != nil {
		return err
	}
	if name != "" {
		race.Name = name
	}
	if venue != "" {
		race.Venue = &venue
	}
	if err := race.Validate(); err != nil {
		c.println("Error:", err)
		return nil
	}

	if c.races.Update(ctx, id, race) {
		c.println("Race updated successfully!")
	} else {
		c.println("Failed to update race")
	}
	return nil
}

func (c *Console) deleteRace(ctx context.Context) error {
	race, id, err := c.lookup(ctx, "\nEnter Race ID to delete: ")
	if err != nil || race == nil {
		return err
	}

	c.printf("\nDelete race: %s?\n", race.Name)
	confirm, err := c.prompt(ctx, "Type 'DELETE' to confirm: ")
	if err != nil {
		return err
	}
	if confirm != "DELETE" {
		c.println("Deletion cancelled")
		return nil
	}
	if c.races.Delete(ctx, id) {
		c.println("Race deleted successfully!")
	} else {
		c.println("Failed to delete race")
	}
	return nil
}

// lookup reads a race id and fetches it. A nil race with a nil error means
// the problem was already reported.
func (c *Console) lookup(ctx context.Context, label string) (*models.Race, int64, error) {
	raw, err := c.prompt(ctx, label)
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.printf("Error: %q is not a race ID\n", raw)
		return nil, 0, nil
	}
	race := c.races.GetByID(ctx, id)
	if race == nil {
		c.println("Race not found")
		return nil, 0, nil
	}
	return race, id, nil
}

// settings shows the binding and lets the operator test it, toggle the cloud
// database, switch environment and save or reload the configuration.
func (c *Console) settings(ctx context.Context) error {
	for {
		st := c.database.Status(ctx)
		c.println()
		c.println(headingStyle.Render("SETTINGS"))
		c.println("Environment:", c.cfg.Environment)
		c.println("Database:", st.Kind())
		c.println("Host:", st.Host)
		c.println("Database:", st.Database)
		c.println("Pool size:", st.PoolSize)
		c.println("Connected:", yesNo(st.Connected))
		c.println("Configured host:", c.cfg.Database.ActiveHost())
		c.println()
		c.println("1. Test Database Connection")
		c.printf("2. Toggle Cloud Database (currently %s)\n", onOff(c.cfg.Database.UseCloud))
		c.println("3. Switch Environment")
		c.println("4. Save Configuration")
		c.println("5. Reload Configuration")
		c.println("0. Back")

		choice, err := c.prompt(ctx, "\nSelect option: ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			c.testConnection(ctx)
		case "2":
			next := *c.cfg
			next.Database.UseCloud = !next.Database.UseCloud
			c.apply(ctx, &next)
		case "3":
			env, err := c.prompt(ctx, "Environment: ")
			if err != nil {
				return err
			}
			if env == "" {
				c.println("Environment unchanged")
				continue
			}
			next, err := config.Load(c.cfg.Paths(), env)
			if err != nil {
				c.println("Error:", err)
				continue
			}
			c.apply(ctx, next)
		case "4":
			if err := c.cfg.Save(""); err != nil {
				c.log.Error("saving configuration", zap.Error(err))
				c.println("Error:", err)
				continue
			}
			c.println("Configuration saved to", c.cfg.Paths().ConfigFile(c.cfg.Environment))
		case "5":
			next, err := c.cfg.Reload()
			if err != nil {
				c.println("Error:", err)
				continue
			}
			c.apply(ctx, next)
		case "0":
			return nil
		default:
			c.println("Invalid option")
		}
	}
}

// apply rebinds the database to next and adopts next once that worked.
func (c *Console) apply(ctx context.Context, next *config.Config) {
	if err := c.database.Reconfigure(ctx, next.Database); err != nil {
		c.log.Error("applying settings", zap.String("env", next.Environment), zap.Error(err))
		c.println("Error: settings not applied:", err)
		return
	}
	c.cfg = next
	c.log.Info("settings applied", zap.String("env", next.Environment), zap.Bool("use_cloud", next.Database.UseCloud))
	c.testConnection(ctx)
}

func (c *Console) testConnection(ctx context.Context) {
	if !c.database.TestConnection(ctx) {
		c.println("Connection test failed")
		return
	}
	version, err := c.database.ServerVersion(ctx)
	if err != nil {
		c.println("Connection OK")
		return
	}
	c.println("Connection OK -", version)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// prompt writes label and waits for one trimmed line.
func (c *Console) prompt(ctx context.Context, label string) (string, error) {
	fmt.Fprint(c.out, label)
	select {
	case <-ctx.Done():
		return "", errStop
	case line, ok := <-c.lines:
		if !ok {
			return "", errStop
		}
		return strings.TrimSpace(line), nil
	}
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func typeNames() string {
	names := make([]string, len(models.RaceTypes))
	for i, rt := range models.RaceTypes {
		names[i] = string(rt)
	}
	return strings.Join(names, "/")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
