package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/app"
	"github.com/helios/lifecycle/pkg/auth"
	"github.com/helios/lifecycle/pkg/config"
	"github.com/helios/lifecycle/pkg/logging"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
	"github.com/helios/lifecycle/pkg/store/postgres"
)

type CLI struct {
	Actor string `help:"Operator recorded on approvals, rejections and cancellations." env:"HELIOS_ACTOR" default:"lifecyclectl"`

	Tick    TickCmd    `cmd:"" help:"Run one scheduler tick."`
	List    ListCmd    `cmd:"" help:"List scheduled actions."`
	Approve ApproveCmd `cmd:"" help:"Approve a pending action."`
	Reject  RejectCmd  `cmd:"" help:"Reject a pending action."`
	Cancel  CancelCmd  `cmd:"" help:"Cancel a pending action."`
	Migrate MigrateCmd `cmd:"" help:"Create or update the postgres schema."`
	Token   TokenCmd   `cmd:"" help:"Issue an operator API token."`
}

// runtime carries what commands need; tests replace the container factory.
type runtime struct {
	ctx       context.Context
	cfg       *config.Config
	out       io.Writer
	actor     string
	container func(ctx context.Context) (*app.Container, error)
}

func (rt *runtime) withContainer(fn func(c *app.Container) error) error {
	c, err := rt.container(rt.ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func (rt *runtime) print(v interface{}) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type TickCmd struct{}

func (cmd *TickCmd) Run(rt *runtime) error {
	return rt.withContainer(func(c *app.Container) error {
		result, err := c.Service.ProcessPendingActions(rt.ctx)
		if err != nil {
			return err
		}
		return rt.print(result)
	})
}

type ListCmd struct {
	Organization string   `help:"Organization id." short:"o"`
	Status       []string `help:"Statuses to include." short:"s"`
	Type         []string `help:"Action types to include." short:"t"`
	Limit        int      `help:"Page size." default:"50"`
	Offset       int      `help:"Page offset." default:"0"`
}

func (cmd *ListCmd) Run(rt *runtime) error {
	filter := store.ActionFilter{Limit: cmd.Limit, Offset: cmd.Offset}
	if cmd.Organization != "" {
		org, err := uuid.Parse(cmd.Organization)
		if err != nil {
			return fmt.Errorf("invalid organization id: %w", err)
		}
		filter.OrganizationID = &org
	}
	for _, s := range cmd.Status {
		status := model.ActionStatus(s)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, t := range cmd.Type {
		actionType := model.ActionType(t)
		if !actionType.Valid() {
			return fmt.Errorf("unknown action type %q", t)
		}
		filter.ActionTypes = append(filter.ActionTypes, actionType)
	}

	return rt.withContainer(func(c *app.Container) error {
		actions, total, err := c.Service.GetActions(rt.ctx, filter)
		if err != nil {
			return err
		}
		return rt.print(map[string]interface{}{"actions": actions, "total": total})
	})
}

type ApproveCmd struct {
	ID    string `arg:"" help:"Action id."`
	Notes string `help:"Approval notes."`
}

func (cmd *ApproveCmd) Run(rt *runtime) error {
	id, err := uuid.Parse(cmd.ID)
	if err != nil {
		return fmt.Errorf("invalid action id: %w", err)
	}
	return rt.withContainer(func(c *app.Container) error {
		action, err := c.Service.ApproveAction(rt.ctx, id, rt.actor, cmd.Notes)
		if err != nil {
			return err
		}
		return rt.print(action)
	})
}

type RejectCmd struct {
	ID     string `arg:"" help:"Action id."`
	Reason string `help:"Rejection reason."`
}

func (cmd *RejectCmd) Run(rt *runtime) error {
	id, err := uuid.Parse(cmd.ID)
	if err != nil {
		return fmt.Errorf("invalid action id: %w", err)
	}
	return rt.withContainer(func(c *app.Container) error {
		action, err := c.Service.RejectAction(rt.ctx, id, rt.actor, cmd.Reason)
		if err != nil {
			return err
		}
		return rt.print(action)
	})
}

type CancelCmd struct {
	ID     string `arg:"" help:"Action id."`
	Reason string `help:"Cancellation reason."`
}

func (cmd *CancelCmd) Run(rt *runtime) error {
	id, err := uuid.Parse(cmd.ID)
	if err != nil {
		return fmt.Errorf("invalid action id: %w", err)
	}
	return rt.withContainer(func(c *app.Container) error {
		action, err := c.Service.CancelAction(rt.ctx, id, rt.actor, cmd.Reason)
		if err != nil {
			return err
		}
		return rt.print(action)
	})
}

type MigrateCmd struct{}

func (cmd *MigrateCmd) Run(rt *runtime) error {
	db, err := postgres.NewStore(&rt.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.AutoMigrate(); err != nil {
		return err
	}
	fmt.Fprintln(rt.out, "schema up to date")
	return nil
}

type TokenCmd struct {
	Subject      string        `arg:"" help:"Operator identity, usually an email."`
	Organization string        `help:"Restrict the token to one organization."`
	Scope        []string      `help:"Scopes to grant." default:"actions:read,actions:write,actions:approve"`
	TTL          time.Duration `help:"Token lifetime; defaults to auth.token_ttl."`
}

func (cmd *TokenCmd) Run(rt *runtime) error {
	authCfg := rt.cfg.Auth
	if cmd.TTL > 0 {
		authCfg.TokenTTL = cmd.TTL
	}
	var org *uuid.UUID
	if cmd.Organization != "" {
		parsed, err := uuid.Parse(cmd.Organization)
		if err != nil {
			return fmt.Errorf("invalid organization id: %w", err)
		}
		org = &parsed
	}
	token, err := auth.NewOperatorTokenManager(authCfg).GenerateToken(cmd.Subject, org, cmd.Scope...)
	if err != nil {
		return err
	}
	fmt.Fprintln(rt.out, token)
	return nil
}

func execute(rt *runtime, args []string) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("lifecyclectl"),
		kong.Description("Operate the lifecycle action scheduler."),
		kong.UsageOnError(),
		kong.Writers(rt.out, os.Stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	rt.actor = strings.TrimSpace(cli.Actor)
	return kctx.Run(rt)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.Logging.Format = "console"
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Scheduler.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.Scheduler.InstanceID = fmt.Sprintf("lifecyclectl-%s-%d", host, os.Getpid())
	}

	rt := &runtime{
		ctx: context.Background(),
		cfg: cfg,
		out: os.Stdout,
		container: func(ctx context.Context) (*app.Container, error) {
			return app.NewContainer(ctx, cfg, logger)
		},
	}
	if err := execute(rt, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
