package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/profilesim/internal/config"
	"github.com/kalambet/profilesim/internal/engine"
	"github.com/kalambet/profilesim/internal/jobs"
	"github.com/kalambet/profilesim/internal/persona"
	"github.com/kalambet/profilesim/internal/profile"
	"github.com/kalambet/profilesim/internal/session"
	"github.com/kalambet/profilesim/internal/storage"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// addSessionFlags registers per-invocation overrides of the simulation
// settings. Flags left unset keep the configured value.
func addSessionFlags(fs *pflag.FlagSet) {
	fs.Int("max-turns", 0, "turns per session (default: simulation.max_turns)")
	fs.Int("max-facts", 0, "new facts disclosed per turn (default: simulation.max_facts_per_turn)")
	fs.Float64("forgetfulness", 0, "probability a fact is withheld (default: noise.forgetfulness)")
	fs.Float64("vagueness", 0, "probability a fact is hedged (default: noise.vagueness)")
	fs.Float64("misleading", 0, "probability a fact is misremembered (default: noise.misleading)")
	fs.Float64("topic-hopping", 0, "probability of an unrelated remark (default: noise.topic_hopping)")
	fs.Float64("threshold", 0, "convergence threshold in (0,1] (default: simulation.convergence_threshold)")
}

// applySessionFlags copies the overrides that were set onto cfg and
// validates the result.
func applySessionFlags(fs *pflag.FlagSet, cfg *session.Config) error {
	ints := map[string]*int{
		"max-turns": &cfg.MaxTurns,
		"max-facts": &cfg.Disclosure.MaxNewFactsPerTurn,
	}
	for name, dst := range ints {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	floats := map[string]*float64{
		"forgetfulness": &cfg.Disclosure.Noise.Forgetfulness,
		"vagueness":     &cfg.Disclosure.Noise.Vagueness,
		"misleading":    &cfg.Disclosure.Noise.Misleading,
		"topic-hopping": &cfg.Disclosure.Noise.TopicHopping,
		"threshold":     &cfg.ConvergenceThreshold,
	}
	for name, dst := range floats {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetFloat64(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return cfg.Validate()
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulated session",
	Long: `Run one simulated session and print the per-turn accuracy.

Examples:
  profilesim run --persona widowed_gardener --seed 7
  profilesim run --persona-file ./me.yaml --verbose
  profilesim run --persona sparse --forgetfulness 0.3 --max-turns 40
  profilesim run --persona sparse --json --save`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("persona")
		file, _ := cmd.Flags().GetString("persona-file")
		seed, _ := cmd.Flags().GetUint64("seed")
		asJSON, _ := cmd.Flags().GetBool("json")
		save, _ := cmd.Flags().GetBool("save")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := applySessionFlags(cmd.Flags(), &a.session); err != nil {
			return err
		}
		p, err := persona.Resolve(name, file)
		if err != nil {
			return err
		}
		ext, err := a.extractor(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}

		res, err := a.runner(ext).Run(cmd.Context(), specFor(p, seed, a.session))
		if err != nil {
			return err
		}

		if asJSON {
			err = writeJSON(os.Stdout, res)
		} else {
			printResult(os.Stdout, res, verbose)
		}
		if err != nil {
			return err
		}
		if save {
			if err := saveResults(a, []*session.Result{res}); err != nil {
				return err
			}
			printSuccess("Saved run %s", res.ID)
		}
		return a.flushMetrics()
	},
}

func init() {
	runCmd.Flags().String("persona", "widowed_gardener", "built-in persona name")
	runCmd.Flags().String("persona-file", "", "YAML persona file (overrides --persona)")
	runCmd.Flags().Uint64("seed", 1, "random seed")
	runCmd.Flags().Bool("json", false, "print the full result as JSON")
	runCmd.Flags().Bool("save", false, "record the run in the local ledger")
	runCmd.Flags().BoolP("verbose", "v", false, "print each utterance")
	addSessionFlags(runCmd.Flags())
}

func specFor(p persona.Persona, seed uint64, cfg session.Config) session.Spec {
	return session.Spec{
		Persona:     p.Name,
		GroundTruth: p.Profile,
		Config:      cfg,
		Seed:        seed,
	}
}

func saveResults(a *app, results []*session.Result) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, res := range results {
		if err := jobs.Save(store, res, a.backendLabel()); err != nil {
			return err
		}
	}
	return nil
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run many sessions and summarize them",
	Long: `Run every selected persona once per seed, concurrently, and print
aggregate accuracy and convergence statistics.

Examples:
  profilesim batch --seeds 20
  profilesim batch --persona sparse --persona widowed_gardener --seeds 50 --parallelism 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("persona")
		file, _ := cmd.Flags().GetString("persona-file")
		seeds, _ := cmd.Flags().GetInt("seeds")
		seedStart, _ := cmd.Flags().GetUint64("seed-start")
		parallelism, _ := cmd.Flags().GetInt("parallelism")
		asJSON, _ := cmd.Flags().GetBool("json")
		save, _ := cmd.Flags().GetBool("save")

		if seeds <= 0 {
			return fmt.Errorf("--seeds must be positive")
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := applySessionFlags(cmd.Flags(), &a.session); err != nil {
			return err
		}
		if parallelism <= 0 {
			parallelism = a.cfg.Simulation.Parallelism
		}
		personas, err := selectPersonas(names, file)
		if err != nil {
			return err
		}
		ext, err := a.extractor(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}

		specs := buildSpecs(personas, seedStart, seeds, a.session)
		printStep("Running %d sessions (%d personas × %d seeds)", len(specs), len(personas), seeds)
		start := time.Now()
		results, err := a.runner(ext).RunBatch(cmd.Context(), specs, parallelism)
		if err != nil {
			return err
		}
		summary, err := session.Summarize(results)
		if err != nil {
			return err
		}

		if asJSON {
			err = writeJSON(os.Stdout, summary)
		} else {
			printSummary(os.Stdout, summary)
			printStatus(os.Stdout, "Elapsed", "%s", time.Since(start).Round(time.Millisecond))
		}
		if err != nil {
			return err
		}
		if save {
			if err := saveResults(a, results); err != nil {
				return err
			}
			printSuccess("Saved %d runs", len(results))
		}
		return a.flushMetrics()
	},
}

func init() {
	batchCmd.Flags().StringSlice("persona", nil, "built-in persona names (default: all)")
	batchCmd.Flags().String("persona-file", "", "YAML persona file to run instead of built-ins")
	batchCmd.Flags().Int("seeds", 10, "sessions per persona")
	batchCmd.Flags().Uint64("seed-start", 1, "first seed")
	batchCmd.Flags().Int("parallelism", 0, "concurrent sessions (default: simulation.parallelism)")
	batchCmd.Flags().Bool("json", false, "print the summary as JSON")
	batchCmd.Flags().Bool("save", false, "record every run in the local ledger")
	addSessionFlags(batchCmd.Flags())
}

// selectPersonas resolves the batch persona selection. A file wins over
// names; no selection means every built-in persona.
func selectPersonas(names []string, file string) ([]persona.Persona, error) {
	if file != "" {
		p, err := persona.LoadFile(file)
		if err != nil {
			return nil, err
		}
		return []persona.Persona{p}, nil
	}
	if len(names) == 0 {
		return persona.All()
	}
	out := make([]persona.Persona, 0, len(names))
	for _, n := range names {
		p, err := persona.ByName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// buildSpecs pairs every persona with seeds seedStart..seedStart+count-1.
func buildSpecs(personas []persona.Persona, seedStart uint64, count int, cfg session.Config) []session.Spec {
	specs := make([]session.Spec, 0, len(personas)*count)
	for _, p := range personas {
		for i := 0; i < count; i++ {
			specs = append(specs, specFor(p, seedStart+uint64(i), cfg))
		}
	}
	return specs
}

// --- personas ---

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Inspect built-in personas",
}

var personasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, err := persona.All()
		if err != nil {
			return err
		}
		listPersonas(os.Stdout, all)
		return nil
	},
}

var personasShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a persona's ground-truth profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := persona.ByName(args[0])
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, p.Profile)
	},
}

func init() {
	personasCmd.AddCommand(personasListCmd)
	personasCmd.AddCommand(personasShowCmd)
}

func listPersonas(w io.Writer, all []persona.Persona) {
	for _, p := range all {
		fmt.Fprintf(w, "%s  %s  %s\n",
			styled(boldStyle, fmt.Sprintf("%-20s", p.Name)),
			p.Title,
			styled(dimStyle, fmt.Sprintf("(%d/%d fields)", p.Profile.KnownCount(), profile.FieldCount())),
		)
	}
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse the run ledger",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("persona")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := loadApp()
		if err != nil {
			return err
		}
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(storage.RunFilter{Persona: name, Limit: limit})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		for _, r := range runs {
			fmt.Println(formatRun(r))
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded run with its turns and conflicts as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		detail, err := loadRunDetail(store, args[0])
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, detail)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteRun(args[0]); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			return err
		}
		printSuccess("Deleted run %s", args[0])
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("persona", "", "only runs of this persona")
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

type runDetail struct {
	Run       storage.Run          `json:"run"`
	Turns     []storage.TurnReport `json:"turns"`
	Conflicts []storage.Conflict   `json:"conflicts"`
}

func loadRunDetail(store *storage.Store, id string) (runDetail, error) {
	run, err := store.GetRun(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return runDetail{}, fmt.Errorf("run %s not found", id)
		}
		return runDetail{}, err
	}
	turns, err := store.GetTurnReports(id)
	if err != nil {
		return runDetail{}, err
	}
	conflicts, err := store.GetConflicts(id)
	if err != nil {
		return runDetail{}, err
	}
	return runDetail{Run: run, Turns: turns, Conflicts: conflicts}, nil
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue sessions for a background worker",
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue sessions for a persona",
	Long: `Queue one session per seed. A worker picks them up and records the
results in the run ledger.

Examples:
  profilesim queue add --persona sparse --count 20
  profilesim queue add --persona-file ./me.yaml --seed 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("persona")
		file, _ := cmd.Flags().GetString("persona-file")
		seed, _ := cmd.Flags().GetUint64("seed")
		count, _ := cmd.Flags().GetInt("count")
		maxAttempts, _ := cmd.Flags().GetInt("max-attempts")

		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := applySessionFlags(cmd.Flags(), &a.session); err != nil {
			return err
		}
		if file == "" {
			if _, err := persona.ByName(name); err != nil {
				return err
			}
		}
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := enqueueSessions(store, jobs.Payload{Persona: name, PersonaFile: file, Config: a.session}, seed, count, maxAttempts)
		if err != nil {
			return err
		}
		printSuccess("Queued %d sessions", len(ids))
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := loadApp()
		if err != nil {
			return err
		}
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.ListJobs(status, limit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}
		for _, j := range list {
			line := fmt.Sprintf("%s  %-9s attempts %d/%d  %s",
				styled(stepStyle, shortID(j.ID)), j.Status, j.Attempts, j.MaxAttempts,
				j.CreatedAt.Local().Format("2006-01-02 15:04"))
			if j.LastError != "" {
				line += "  " + styled(errorStyle, j.LastError)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	queueAddCmd.Flags().String("persona", "widowed_gardener", "built-in persona name")
	queueAddCmd.Flags().String("persona-file", "", "YAML persona file (overrides --persona)")
	queueAddCmd.Flags().Uint64("seed", 1, "first seed")
	queueAddCmd.Flags().Int("count", 1, "number of sessions, one per consecutive seed")
	queueAddCmd.Flags().Int("max-attempts", 3, "attempts before a job is marked failed")
	addSessionFlags(queueAddCmd.Flags())
	queueListCmd.Flags().String("status", "", "only jobs in this status (pending, running, completed, failed)")
	queueListCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
}

// enqueueSessions queues count copies of base with consecutive seeds.
func enqueueSessions(store jobs.JobEnqueuer, base jobs.Payload, seed uint64, count, maxAttempts int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("--count must be positive")
	}
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		p := base
		p.Seed = seed + uint64(i)
		id, err := jobs.Enqueue(store, p, maxAttempts)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// --- worker ---

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		drain, _ := cmd.Flags().GetBool("drain")
		poll, _ := cmd.Flags().GetDuration("poll")

		a, err := loadApp()
		if err != nil {
			return err
		}
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		ext, err := a.extractor(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}

		w := jobs.NewWorker(store, a.runner(ext), a.backendLabel(), poll, jobs.WithLogger(a.logger))
		if drain {
			n, err := w.Drain(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Processed %d jobs", n)
			return a.flushMetrics()
		}

		printStep("Worker started, press Ctrl+C to stop")
		w.Run(cmd.Context())
		return a.flushMetrics()
	},
}

func init() {
	workerCmd.Flags().Bool("drain", false, "exit once the queue is empty")
	workerCmd.Flags().Duration("poll", 500*time.Millisecond, "poll interval while the queue is empty")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", styled(boldStyle, k.Key), k.Value)
		}
		if cfg.OpenAI.APIKey == "" && cfg.Engine.Backend == engine.BackendOpenAI {
			printWarning("openai.api_key is not set; use config set-secret or PROFILESIM_OPENAI_API_KEY")
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a secret in the platform secret store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
