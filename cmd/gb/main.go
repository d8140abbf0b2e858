package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gigboard/internal/app"
	"gigboard/internal/config"
	"gigboard/internal/db"
	"gigboard/internal/domain"
	"gigboard/internal/engine"
	"gigboard/internal/repo"
	"gigboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gb",
	Short: "Gigboard CLI",
	Long: `Gigboard is a two-sided gig marketplace.
Clients post gigs with a budget; freelancers bid on open gigs.
Hiring a bid assigns the gig, marks the winning bid hired and rejects the
rest, atomically. Completed gigs can be reviewed by both sides, and the
average rating lands on the reviewee's profile.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GIGBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(gigCmd())
	rootCmd.AddCommand(bidCmd())
	rootCmd.AddCommand(hireCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func gigCmd() *cobra.Command {
	gig := &cobra.Command{Use: "gig", Short: "Manage gigs"}
	gig.AddCommand(gigCreateCmd())
	gig.AddCommand(gigListCmd())
	gig.AddCommand(gigShowCmd())
	gig.AddCommand(gigUpdateCmd())
	gig.AddCommand(gigDeleteCmd())
	gig.AddCommand(gigCompleteCmd())
	return gig
}

func gigCreateCmd() *cobra.Command {
	var title, desc, category string
	var budget float64
	var skills []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a gig",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CreateGig(ctx, engine.GigCreateOptions{
					Title:       title,
					Description: desc,
					Budget:      budget,
					Category:    category,
					Skills:      skills,
					OwnerID:     viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "gig title")
	cmd.Flags().StringVar(&desc, "description", "", "gig description")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringSliceVar(&skills, "skill", nil, "required skill (repeatable)")
	return cmd
}

func gigListCmd() *cobra.Command {
	var status, owner, search string
	var mine bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse gigs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if mine {
					owner = viper.GetString("user-id")
				}
				gigs, err := e.ListGigs(ctx, repo.GigFilters{
					Status:  status,
					OwnerID: owner,
					Search:  search,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(gigs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Budget", "Category", "Status", "Owner"})
				for _, g := range gigs {
					tw.AppendRow(table.Row{g.ID, g.Title, g.Budget, g.Category, g.Status, g.OwnerID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (open, assigned, completed)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&search, "search", "", "search title and description")
	cmd.Flags().BoolVar(&mine, "mine", false, "only my gigs")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func gigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <gig-id>",
		Short: "Show a gig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.GetGig(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	return cmd
}

func gigUpdateCmd() *cobra.Command {
	var title, desc, category string
	var budget float64
	var skills []string
	cmd := &cobra.Command{
		Use:   "update <gig-id>",
		Short: "Update a gig you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.GigUpdateOptions{}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				if cmd.Flags().Changed("budget") {
					opts.Budget = &budget
				}
				if cmd.Flags().Changed("category") {
					opts.Category = &category
				}
				if cmd.Flags().Changed("skill") {
					opts.Skills = skills
					opts.SkillsSet = true
				}
				g, err := e.UpdateGig(ctx, args[0], viper.GetString("user-id"), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "gig title")
	cmd.Flags().StringVar(&desc, "description", "", "gig description")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringSliceVar(&skills, "skill", nil, "required skill (repeatable)")
	return cmd
}

func gigDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <gig-id>",
		Short: "Delete an open gig you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteGig(ctx, args[0], viper.GetString("user-id")); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func gigCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <gig-id>",
		Short: "Mark an assigned gig completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CompleteGig(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	return cmd
}

func bidCmd() *cobra.Command {
	bid := &cobra.Command{Use: "bid", Short: "Manage bids"}
	bid.AddCommand(bidSubmitCmd())
	bid.AddCommand(bidListCmd())
	bid.AddCommand(bidMineCmd())
	return bid
}

func bidSubmitCmd() *cobra.Command {
	var message string
	var price float64
	cmd := &cobra.Command{
		Use:   "submit <gig-id>",
		Short: "Bid on an open gig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.SubmitBid(ctx, engine.BidCreateOptions{
					GigID:        args[0],
					Message:      message,
					Price:        price,
					FreelancerID: viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "pitch to the gig owner")
	cmd.Flags().Float64Var(&price, "price", 0, "offered price")
	return cmd
}

func bidListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <gig-id>",
		Short: "List bids on a gig you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				bids, err := e.ListBidsForGig(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(bids)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Freelancer", "Price", "Status", "Message"})
				for _, b := range bids {
					tw.AppendRow(table.Row{b.ID, b.FreelancerID, b.Price, b.Status, b.Message})
				}
				tw.Render()
				counts, err := e.Repo.CountBidsByStatus(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("pending %d, hired %d, rejected %d\n", counts["pending"], counts["hired"], counts["rejected"])
				return nil
			})
		},
	}
	return cmd
}

func bidMineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List my bids with their gigs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				bids, err := e.MyBids(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(bids)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Gig", "Gig Status", "Price", "Bid Status"})
				for _, b := range bids {
					tw.AppendRow(table.Row{b.ID, b.Gig.Title, b.Gig.Status, b.Price, b.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func hireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hire <bid-id>",
		Short: "Accept a bid and assign the gig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, b, err := e.Hire(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"gig": g, "bid": b})
			})
		},
	}
	return cmd
}

func reviewCmd() *cobra.Command {
	review := &cobra.Command{Use: "review", Short: "Reviews"}
	review.AddCommand(reviewAddCmd())
	review.AddCommand(reviewListCmd())
	return review
}

func reviewAddCmd() *cobra.Command {
	var rating int
	var comment string
	cmd := &cobra.Command{
		Use:   "add <gig-id>",
		Short: "Review a completed gig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.CreateReview(ctx, engine.ReviewCreateOptions{
					GigID:      args[0],
					Rating:     rating,
					Comment:    comment,
					ReviewerID: viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}

func reviewListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews received by a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if userID == "" {
					userID = viper.GetString("user-id")
				}
				reviews, err := e.ListReviewsForUser(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(reviews)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to acting user)")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Profiles and stats"}
	user.AddCommand(userShowCmd())
	user.AddCommand(userUpdateCmd())
	user.AddCommand(userStatsCmd())
	return user
}

func userShowCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if userID == "" {
					userID = viper.GetString("user-id")
				}
				u, err := e.GetUser(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to acting user)")
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var name, bio, location string
	var hourlyRate float64
	var skills []string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update my profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ProfileUpdateOptions{}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("bio") {
					opts.Bio = &bio
				}
				if cmd.Flags().Changed("location") {
					opts.Location = &location
				}
				if cmd.Flags().Changed("hourly-rate") {
					opts.HourlyRate = &hourlyRate
				}
				if cmd.Flags().Changed("skill") {
					opts.Skills = skills
					opts.SkillsSet = true
				}
				u, err := e.UpdateProfile(ctx, viper.GetString("user-id"), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&bio, "bio", "", "short bio")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().Float64Var(&hourlyRate, "hourly-rate", 0, "hourly rate")
	cmd.Flags().StringSliceVar(&skills, "skill", nil, "skill (repeatable)")
	return cmd
}

func userStatsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Marketplace stats for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if userID == "" {
					userID = viper.GetString("user-id")
				}
				s, err := e.UserStats(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to acting user)")
	return cmd
}

func notificationsCmd() *cobra.Command {
	var undelivered bool
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List my notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Notifications(ctx, viper.GetString("user-id"), undelivered, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Kind", "Gig", "Message"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.CreatedAt, n.Kind, n.GigTitle, n.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&undelivered, "undelivered", false, "only queued notifications")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var limit int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				userID := viper.GetString("user-id")
				now := time.Now().UTC().Format(time.RFC3339)
				if err := r.EnsureUser(ctx, userID, "", "", now); err != nil {
					return err
				}
				rawKey := "gb_" + newID()
				key := newAPIKey(userID, name, rawKey, now)
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Println("api key (store it now, it is not retrievable):", rawKey)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default gigboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a gigboard.yml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := config.FromFile(path); err != nil {
				return err
			}
			fmt.Println(path, "is valid")
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer env.Close()
			cfg := env.Config
			secret := os.Getenv("GIGBOARD_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("GIGBOARD_JWT_SECRET is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:   env.Engine,
				Hub:      env.Hub,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, DevLogin: cfg.Auth.DevLogin},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Gigboard API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	env, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	env, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env.Engine.Repo)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newID() string {
	return uuid.NewString()
}

func newAPIKey(userID, name, rawKey, now string) domain.APIKey {
	return domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(rawKey),
		CreatedAt: now,
	}
}
