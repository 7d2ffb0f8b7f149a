package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clobsettle/config"
	"clobsettle/native/dominator"
)

const defaultConfig = "./config.toml"

type rootOptions struct {
	configPath string
	height     uint64
	// logger overrides the logger built from the config file.
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operate the dominator settlement engine against a local state database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "Path to the settlement config file")
	root.PersistentFlags().Uint64Var(&opts.height, "height", 0, "Block height the command executes at")

	root.AddCommand(
		newInitCmd(opts),
		newDecodeCmd(),
		newVerifyCmd(opts),
		newSeasonCmd(opts),
		newRegisterCmd(opts),
		newAuthorityCmd(opts, "launch", "Launch a registered dominator", (*dominator.Engine).Launch),
		newAuthorityCmd(opts, "evict", "Evict a dominator", (*dominator.Engine).Evict),
		newStakeCmd(opts, "stake", "Stake native tokens behind a dominator", (*dominator.Engine).Stake),
		newStakeCmd(opts, "unstake", "Withdraw staked native tokens", (*dominator.Engine).Unstake),
		newClaimCmd(opts),
		newFundsCmd(opts, "authorize", "Escrow tokens for trading with a dominator", (*dominator.Engine).Authorize),
		newFundsCmd(opts, "revoke", "Request the withdrawal of authorized tokens", (*dominator.Engine).Revoke),
		newTickCmd(opts),
		newMintCmd(opts),
	)
	return root
}

// withEnv opens the state, runs fn and commits when fn succeeds.
func withEnv(cmd *cobra.Command, opts *rootOptions, fn func(*env) error) error {
	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := fn(e); err != nil {
		return err
	}
	return e.commit(cmd.OutOrStdout())
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var authority, dataDir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default engine parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil {
				return fmt.Errorf("config file %s already exists", opts.configPath)
			}
			cfg := config.Default()
			cfg.Dominator.Authority = authority
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if err := config.ValidateConfig(cfg); err != nil {
				return err
			}
			if err := config.Save(opts.configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&authority, "authority", "", "Hex address allowed to launch and evict dominators")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "State database directory")
	_ = cmd.MarkFlagRequired("authority")
	return cmd
}

func readBatch(path string, hexInput bool) ([]*dominator.Proof, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if hexInput {
		raw, err = hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x"))
		if err != nil {
			return nil, fmt.Errorf("decode hex: %w", err)
		}
	}
	return dominator.DecodeBatch(raw)
}

func newDecodeCmd() *cobra.Command {
	var hexInput bool
	cmd := &cobra.Command{
		Use:   "decode <batch-file>",
		Short: "Print the proofs of an RLP encoded batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proofs, err := readBatch(args[0], hexInput)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range proofs {
				fmt.Fprintf(out, "event=%d user=0x%x command=%s leaves=%d makers=%d pages=%d root=%s\n",
					p.EventID, p.UserID, p.Command.Kind(), len(p.Leaves), p.MakerAccounts, p.PageCount, p.Root.Hex())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&hexInput, "hex", false, "Batch file holds hex instead of raw bytes")
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		hexInput bool
		operator string
	)
	cmd := &cobra.Command{
		Use:   "verify <batch-file>",
		Short: "Verify and settle a batch of proofs submitted by a dominator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := parseAddress(operator)
			if err != nil {
				return err
			}
			proofs, err := readBatch(args[0], hexInput)
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(e *env) error {
				n, verr := e.engine.Verify(caller, proofs)
				fmt.Fprintf(cmd.OutOrStdout(), "settled %d of %d proofs\n", n, len(proofs))
				if verr != nil && n > 0 {
					// Proofs before the failing one stay settled.
					if err := e.commit(cmd.OutOrStdout()); err != nil {
						return err
					}
				}
				return verr
			})
		},
	}
	cmd.Flags().BoolVar(&hexInput, "hex", false, "Batch file holds hex instead of raw bytes")
	cmd.Flags().StringVar(&operator, "dominator", "", "Hex address operating the dominator")
	_ = cmd.MarkFlagRequired("dominator")
	return cmd
}

func newSeasonCmd(opts *rootOptions) *cobra.Command {
	var account, stakerAddr string
	cmd := &cobra.Command{
		Use:   "season",
		Short: "Show a dominator's status, season and pending shares",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dom, err := parseAddress(account)
			if err != nil {
				return err
			}
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()
			d, err := e.engine.Dominator(dom)
			if err != nil {
				return err
			}
			season, err := e.engine.CurrentSeason(dom)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name=%s status=%s staked=%s season=%d sequence=%d root=%s\n",
				d.Name, d.Status, d.Staked, season, d.Sequence, d.MerkleRoot.Hex())
			if stakerAddr == "" {
				return nil
			}
			who, err := parseAddress(stakerAddr)
			if err != nil {
				return err
			}
			shares, err := e.engine.PendingShares(who, dom)
			if err != nil {
				return err
			}
			for _, s := range shares {
				fmt.Fprintf(out, "pending token=%d amount=%s\n", s.Token, s.Amount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "dominator", "", "Hex address operating the dominator")
	cmd.Flags().StringVar(&stakerAddr, "staker", "", "Also list the pending shares of this staker")
	_ = cmd.MarkFlagRequired("dominator")
	return cmd
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var caller, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a dominator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			who, err := parseAddress(caller)
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(e *env) error {
				return e.engine.Register(who, name)
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "Hex address of the operator")
	cmd.Flags().StringVar(&name, "name", "", "Unique dominator name")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newAuthorityCmd(opts *rootOptions, use, short string, op func(*dominator.Engine, [20]byte, [20]byte) error) *cobra.Command {
	var caller, target string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			who, err := parseAddress(caller)
			if err != nil {
				return err
			}
			dom, err := parseAddress(target)
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(e *env) error {
				return op(e.engine, who, dom)
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "Hex address of the authority")
	cmd.Flags().StringVar(&target, "dominator", "", "Hex address operating the dominator")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("dominator")
	return cmd
}

func newStakeCmd(opts *rootOptions, use, short string, op func(*dominator.Engine, [20]byte, [20]byte, *big.Int) error) *cobra.Command {
	var stakerAddr, target, amount string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			who, err := parseAddress(stakerAddr)
			if err != nil {
				return err
			}
			dom, err := parseAddress(target)
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(e *env) error {
				return op(e.engine, who, dom, value)
			})
		},
	}
	cmd.Flags().StringVar(&stakerAddr, "staker", "", "Hex address of the staker")
	cmd.Flags().StringVar(&target, "dominator", "", "Hex address operating the dominator")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in base units")
	for _, name := range []string{"staker", "dominator", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newFundsCmd(opts *rootOptions, use, short string, op func(*dominator.Engine, [20]byte, [20]byte, uint32, *big.Int) error) *cobra.Command {
	var (
		user, target, amount string
		token                uint32
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			who, err := parseAddress(user)
			if err != nil {
				return err
			}
			dom, err := parseAddress(target)
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(e *env) error {
				return op(e.engine, who, dom, token, value)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Hex address of the trader")
	cmd.Flags().StringVar(&target, "dominator", "", "Hex address operating the dominator")
	cmd.Flags().Uint32Var(&token, "token", 0, "Token id")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in base units")
	for _, name := range []string{"user", "dominator", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newClaimCmd(opts *rootOptions) *cobra.Command {
	var stakerAddr, target string
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the staker's share of finished seasons",
		RunE: func(cmd *cobra.Command, _ []string) error {
			who, err := parseAddress(stakerAddr)
			if err != nil {
				return err
			}
			dom, err := parseAddress(target)
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(e *env) error {
				_, err := e.engine.ClaimShares(who, dom)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&stakerAddr, "staker", "", "Hex address of the staker")
	cmd.Flags().StringVar(&target, "dominator", "", "Hex address operating the dominator")
	_ = cmd.MarkFlagRequired("staker")
	_ = cmd.MarkFlagRequired("dominator")
	return cmd
}

func newTickCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run the block initialisation hook at --height",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				return e.engine.OnInitialize(e.height)
			})
		},
	}
}

func newMintCmd(opts *rootOptions) *cobra.Command {
	var (
		who, amount string
		token       uint32
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Credit tokens to an account (local networks only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := parseAddress(who)
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(e *env) error {
				if !strings.HasSuffix(e.cfg.NetworkName, "-local") {
					return fmt.Errorf("mint is disabled on network %s", e.cfg.NetworkName)
				}
				return e.ledger.Mint(token, account, value)
			})
		},
	}
	cmd.Flags().StringVar(&who, "account", "", "Hex address to credit")
	cmd.Flags().Uint32Var(&token, "token", 0, "Token id")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in base units")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
