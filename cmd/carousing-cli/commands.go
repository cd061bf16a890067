package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bloops-games/carousing/internal/auth"
	"github.com/bloops-games/carousing/internal/carousing/model"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
)

const (
	kindCustom   = "custom"
	kindExpanded = "expanded"
)

var errUsage = fmt.Errorf("invalid arguments")

func userAdd(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ContinueOnError)
	id := fs.String("id", "", "user id")
	name := fs.String("name", "", "display name")
	gm := fs.Bool("gm", false, "grant game master rights")
	chat := fs.Int64("chat", 0, "telegram chat id for notifications")
	lang := fs.String("lang", "", "language code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("user add: -id is required: %w", errUsage)
	}
	if *name == "" {
		*name = *id
	}

	u := userModel.User{
		ID:           *id,
		Name:         *name,
		GM:           *gm,
		ChatID:       *chat,
		LanguageCode: *lang,
		CreatedAt:    time.Now(),
	}
	if existing, err := e.users.Fetch(*id); err == nil {
		u.CreatedAt = existing.CreatedAt
	}

	if err := e.users.Store(u); err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "user %s stored\n", u.ID)
	if _, err := e.users.SecretHash(u.ID); err == nil {
		return nil
	}

	return issueSecret(e, u.ID)
}

func userSecret(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("user secret", flag.ContinueOnError)
	id := fs.String("id", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("user secret: -id is required: %w", errUsage)
	}
	if _, err := e.users.Fetch(*id); err != nil {
		return fmt.Errorf("user %s: %w", *id, err)
	}

	return issueSecret(e, *id)
}

// issueSecret replaces the user's login secret and prints the new one; only its hash is kept.
func issueSecret(e *env, userID string) error {
	secret := auth.NewSecret()
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}
	if err := e.users.StoreSecretHash(userID, hash); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "login secret for %s: %s\n", userID, secret)
	return nil
}

func userList(_ context.Context, e *env, _ []string) error {
	users, err := e.users.FetchAll()
	if err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tGM\tCHAT")
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", u.ID, u.Name, u.GM, u.ChatID)
	}

	return w.Flush()
}

func actorAdd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("actor add", flag.ContinueOnError)
	id := fs.String("id", "", "character id")
	owner := fs.String("owner", "", "owning user id")
	name := fs.String("name", "", "character name")
	gp := fs.Int("gp", 0, "gold pieces")
	sp := fs.Int("sp", 0, "silver pieces")
	cp := fs.Int("cp", 0, "copper pieces")
	renown := fs.Int("renown", 0, "renown")
	xp := fs.Int("xp", 0, "experience")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *owner == "" {
		return fmt.Errorf("actor add: -id and -owner are required: %w", errUsage)
	}
	if _, err := e.users.Fetch(*owner); err != nil {
		return fmt.Errorf("fetch owner %s: %w", *owner, err)
	}
	if *name == "" {
		*name = *id
	}

	a := actorModel.Actor{
		ID:      *id,
		OwnerID: *owner,
		Name:    *name,
		Coins:   actorModel.Coins{GP: *gp, SP: *sp, CP: *cp},
		Renown:  *renown,
		XP:      *xp,
	}
	if err := e.actors.Store(ctx, a); err != nil {
		return fmt.Errorf("store actor: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "actor %s stored\n", a.ID)
	return nil
}

func actorList(ctx context.Context, e *env, _ []string) error {
	actors, err := e.actors.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch actors: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tOWNER\tNAME\tGP\tSP\tCP\tRENOWN\tXP")
	for _, a := range actors {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			a.ID, a.OwnerID, a.Name, a.Coins.GP, a.Coins.SP, a.Coins.CP, a.Renown, a.XP)
	}

	return w.Flush()
}

func actorAward(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("actor award", flag.ContinueOnError)
	id := fs.String("id", "", "character id")
	gold := fs.Int("gold", 0, "gold pieces, negative to charge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *gold == 0 {
		return fmt.Errorf("actor award: -id and a non-zero -gold are required: %w", errUsage)
	}

	a, err := e.actors.AdjustGold(ctx, *id, *gold)
	if err != nil {
		return fmt.Errorf("adjust gold: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "%s now has %dgp %dsp %dcp\n", a.ID, a.Coins.GP, a.Coins.SP, a.Coins.CP)
	return nil
}

func tableList(ctx context.Context, e *env, _ []string) error {
	c, err := e.tables.List(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tID\tNAME\tDIE\tBUILT-IN")
	for _, t := range c.Custom {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", kindCustom, t.ID, t.Name, t.Die, t.BuiltIn)
	}
	for _, t := range c.Expanded {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", kindExpanded, t.ID, t.Name, t.Die, t.BuiltIn)
	}

	return w.Flush()
}

func tableExport(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("table export", flag.ContinueOnError)
	kind := fs.String("kind", kindCustom, "custom or expanded")
	id := fs.String("id", "", "table id")
	out := fs.String("out", "", "output file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch *kind {
	case kindCustom:
		data, err = e.tables.ExportCustom(ctx, *id)
	case kindExpanded:
		data, err = e.tables.ExportExpanded(ctx, *id)
	default:
		return fmt.Errorf("table export: unknown kind %q: %w", *kind, errUsage)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", *id, err)
	}

	if *out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}

	return os.WriteFile(*out, data, 0o644)
}

func tableImport(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("table import", flag.ContinueOnError)
	kind := fs.String("kind", kindCustom, "custom or expanded")
	in := fs.String("in", "", "input file, stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := readInput(*in)
	if err != nil {
		return err
	}

	switch *kind {
	case kindCustom:
		t, err := e.tables.ImportCustom(ctx, data)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "imported %s as %s\n", t.Name, t.ID)
	case kindExpanded:
		t, err := e.tables.ImportExpanded(ctx, data)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "imported %s as %s\n", t.Name, t.ID)
	default:
		return fmt.Errorf("table import: unknown kind %q: %w", *kind, errUsage)
	}

	return nil
}

func tableParse(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("table parse", flag.ContinueOnError)
	kind := fs.String("kind", kindCustom, "custom or expanded")
	name := fs.String("name", "", "table name")
	die := fs.String("die", "", "roll die, e.g. 1d8")
	tiersFile := fs.String("tiers", "", "tiers text file")
	outcomesFile := fs.String("outcomes", "", "outcomes text file")
	benefitsFile := fs.String("benefits", "", "benefits text file, expanded only")
	mishapsFile := fs.String("mishaps", "", "mishaps text file, expanded only")
	dryRun := fs.Bool("dry-run", false, "print the table instead of saving it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *tiersFile == "" || *outcomesFile == "" {
		return fmt.Errorf("table parse: -name, -tiers and -outcomes are required: %w", errUsage)
	}

	tiersText, err := readText(*tiersFile)
	if err != nil {
		return err
	}
	outcomesText, err := readText(*outcomesFile)
	if err != nil {
		return err
	}

	tiers, skipped := tables.ParseTiers(tiersText)
	warnSkipped("tiers", skipped)

	var table interface{}
	switch *kind {
	case kindCustom:
		outcomes, skipped := tables.ParseOutcomes(outcomesText)
		warnSkipped("outcomes", skipped)
		t := model.Table{Name: *name, Die: *die, Tiers: tiers, Outcomes: outcomes}
		if !*dryRun {
			if t, err = e.tables.SaveCustom(ctx, t); err != nil {
				return fmt.Errorf("save: %w", err)
			}
		}
		table = t
	case kindExpanded:
		recipes, skipped := tables.ParseRecipes(outcomesText)
		warnSkipped("outcomes", skipped)
		benefitsText, err := readText(*benefitsFile)
		if err != nil {
			return err
		}
		mishapsText, err := readText(*mishapsFile)
		if err != nil {
			return err
		}
		benefits, _ := tables.ParseEntries(benefitsText)
		mishaps, _ := tables.ParseEntries(mishapsText)
		t := model.ExpandedTable{
			Name:     *name,
			Die:      *die,
			Tiers:    tiers,
			Outcomes: recipes,
			Benefits: benefits,
			Mishaps:  mishaps,
		}
		if !*dryRun {
			if t, err = e.tables.SaveExpanded(ctx, t); err != nil {
				return fmt.Errorf("save: %w", err)
			}
		}
		table = t
	default:
		return fmt.Errorf("table parse: unknown kind %q: %w", *kind, errUsage)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(table)
}

func warnSkipped(section string, skipped int) {
	if skipped > 0 {
		_, _ = fmt.Fprintf(os.Stderr, "%s: skipped %d malformed lines\n", section, skipped)
	}
}

func readText(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return string(data), nil
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return data, nil
}
