package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	cl "yieldgotchi/internal/cli"
	"yieldgotchi/internal/config"
	"yieldgotchi/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "yieldgotchi",
		Short:        "Raise a guardian on the yield of your vault",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newConnectCmd(&apiBase),
		newDisconnectCmd(),
		newMintCmd(&apiBase),
		newStatusCmd(&apiBase),
		newDepositCmd(&apiBase),
		newWithdrawCmd(&apiBase),
		newClaimCmd(&apiBase),
		newEquipCmd(&apiBase),
		newCatalogCmd(&apiBase),
		newResetCmd(&apiBase),
		newSyncCmd(&apiBase),
		newWatchCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("wallet required: %w", err)
	}
	return sess, nil
}

func newConnectCmd(apiBase *string) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a simulated wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sess, err := cl.LoadSession(); err == nil && address == "" {
				printInfo(fmt.Sprintf("Already connected as %s.", sess.Owner))
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).Health(ctx); err != nil {
				printWarn(fmt.Sprintf("API not reachable (%v). Writes will be queued until `yieldgotchi sync`.", err))
			}
			owner := strings.TrimSpace(address)
			if owner == "" {
				owner = cl.NewWalletAddress()
			}
			if err := cl.SaveSession(cl.Session{Owner: owner, ConnectedAt: time.Now().UTC()}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Connected wallet %s.", owner))
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "reuse an existing wallet address")
	return cmd
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the local wallet connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Disconnected.")
			return nil
		},
	}
}

func newMintCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mint [name]",
		Short: "Mint your guardian egg",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			} else if name, err = promptRequired("Guardian name"); err != nil {
				return err
			}
			idem := uuid.NewString()
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Mint(ctx, sess.Owner, name, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Owner:          sess.Owner,
					Method:         http.MethodPost,
					Path:           "/v1/guardian",
					Body:           map[string]any{"name": name},
					IdempotencyKey: idem,
				})
			}
			renderOutcome(out, "Your guardian egg has been minted.")
			return nil
		},
	}
}

func newStatusCmd(apiBase *string) *cobra.Command {
	var showItems bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show your guardian, vault and armory",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).Account(ctx, sess.Owner)
			if err != nil {
				if cl.StatusOf(err) == http.StatusNotFound {
					printInfo("No guardian yet. Run `yieldgotchi mint NAME`.")
					return nil
				}
				return err
			}
			fmt.Println(renderAccount(view, view.AsOf))
			if showItems {
				renderInventory(view.Inventory)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showItems, "items", false, "list every owned item with its id")
	return cmd
}

func newDepositCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit [amount]",
		Short: "Deposit principal into your vault",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return vaultCommand(cmd, apiBase, args, "deposit")
		},
	}
}

func newWithdrawCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw [amount]",
		Short: "Withdraw principal from your vault",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return vaultCommand(cmd, apiBase, args, "withdraw")
		},
	}
}

func vaultCommand(cmd *cobra.Command, apiBase *string, args []string, op string) error {
	sess, err := requireSession()
	if err != nil {
		return err
	}
	amount, err := amountFromArgOrPrompt(args)
	if err != nil {
		return err
	}
	idem := uuid.NewString()
	client := newClient(apiBase)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var out cl.Outcome
	var msg string
	if op == "deposit" {
		out, err = client.Deposit(ctx, sess.Owner, amount, idem)
		msg = fmt.Sprintf("Deposited %s.", formatCurrency(amount))
	} else {
		out, err = client.Withdraw(ctx, sess.Owner, amount, idem)
		msg = fmt.Sprintf("Withdrew %s.", formatCurrency(amount))
	}
	if err != nil {
		return queueOnNetworkError(err, syncq.Command{
			Owner:          sess.Owner,
			Method:         http.MethodPost,
			Path:           "/v1/vault/" + op,
			Body:           map[string]any{"amount": amount},
			IdempotencyKey: idem,
		})
	}
	renderOutcome(out, msg)
	return nil
}

func newClaimCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim accrued yield and roll for armor",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Claim(ctx, sess.Owner, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Owner:          sess.Owner,
					Method:         http.MethodPost,
					Path:           "/v1/vault/claim",
					IdempotencyKey: idem,
				})
			}
			renderOutcome(out, "Claim processed.")
			return nil
		},
	}
}

func newEquipCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "equip [item_id]",
		Short: "Equip or unequip an owned item",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			itemID := ""
			if len(args) > 0 {
				itemID = strings.TrimSpace(args[0])
			} else if itemID, err = promptRequired("Item ID"); err != nil {
				return err
			}
			idem := uuid.NewString()
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.ToggleEquip(ctx, sess.Owner, itemID, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Owner:          sess.Owner,
					Method:         http.MethodPost,
					Path:           "/v1/armory/" + itemID + "/toggle",
					IdempotencyKey: idem,
				})
			}
			msg := "Item updated."
			if it := out.Result.Item; it != nil {
				if it.Equipped {
					msg = fmt.Sprintf("Equipped %s.", it.Name)
				} else {
					msg = fmt.Sprintf("Unequipped %s.", it.Name)
				}
			}
			renderOutcome(out, msg)
			return nil
		},
	}
}

func newCatalogCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List every reward that can be unlocked",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			cat, err := newClient(apiBase).Catalog(ctx)
			if err != nil {
				return err
			}
			renderCatalog(cat)
			return nil
		},
	}
}

func newResetCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete your guardian, vault and armory",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			if !yes {
				ok, err := promptConfirm("This erases your guardian for good. Continue?")
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Reset cancelled.")
					return nil
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).Reset(ctx, sess.Owner, uuid.NewString()); err != nil {
				return err
			}
			printSuccess("Account reset. Run `yieldgotchi mint NAME` to start over.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			dropped := 0
			sent, err := syncq.Drain(func(q syncq.Command) (bool, error) {
				_, err := client.Replay(ctx, q.Owner, q.Method, q.Path, q.Body, q.IdempotencyKey)
				switch status := cl.StatusOf(err); {
				case err == nil:
					return true, nil
				case status == http.StatusConflict && strings.Contains(err.Error(), "idempotency"):
					// Reached the server before the connection dropped.
					return true, nil
				case status != 0:
					dropped++
					printError(fmt.Sprintf("Dropped %s %s: %v", q.Method, q.Path, err))
					return true, nil
				default:
					return false, err
				}
			})
			remaining := len(queue) - sent
			if err != nil {
				printWarn(fmt.Sprintf("Sync stopped: %v", err))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", sent-dropped, dropped, remaining))
			return nil
		},
	}
}

func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if isAPIStructuredError(err) || errors.Is(err, context.Canceled) {
		return err
	}
	cmd.QueuedAt = time.Now().UTC()
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn(fmt.Sprintf("API unreachable, queued %s %s. Run `yieldgotchi sync` later.", cmd.Method, cmd.Path))
	return nil
}

func isAPIStructuredError(err error) bool {
	return cl.StatusOf(err) != 0
}

func amountFromArgOrPrompt(args []string) (float64, error) {
	if len(args) > 0 {
		v, err := parseAmount(args[0])
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid amount %q", args[0])
		}
		return v, nil
	}
	return promptFloat("Amount (USD)", 0)
}
