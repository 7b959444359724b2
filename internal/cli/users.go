package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/tutu-network/idlemine/internal/client"
)

// ─── Users, engagement and catalog ──────────────────────────────────────────
// These print the API response as indented JSON.

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userShowCmd, userLoginCmd, userLevelCmd)
	rootCmd.AddCommand(profileCmd, ledgerCmd)

	rootCmd.AddCommand(upgradeCmd)
	upgradeCmd.AddCommand(upgradeListCmd, upgradeBuyCmd)

	rootCmd.AddCommand(nftCmd)
	nftCmd.AddCommand(nftListCmd, nftGrantCmd, nftActivateCmd)

	rootCmd.AddCommand(referralCmd)
	referralCmd.AddCommand(referralListCmd, referralAddCmd)

	rootCmd.AddCommand(catalogCmd)

	ledgerCmd.Flags().Int("limit", 50, "maximum entries")
	nftGrantCmd.Flags().String("name", "", "collectible name")
	nftGrantCmd.Flags().Float64("duration", 24, "boost window in hours")
	nftGrantCmd.Flags().Float64("mining-rate", 0, "mining rate boost percent")
	nftGrantCmd.Flags().Float64("mining-time", 0, "session time reduction percent")
	nftGrantCmd.Flags().Float64("reward-multiplier", 0, "reward multiplier percent")
	nftGrantCmd.Flags().Float64("special", 0, "special boost percent")
}

// getJSON and postJSON are the shared RunE bodies.
func getJSON(cmd *cobra.Command, path string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	raw, err := c.Get(cmd.Context(), path)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func postJSON(cmd *cobra.Command, path string, body interface{}) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	raw, err := c.Post(cmd.Context(), path, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

// ─── user ───────────────────────────────────────────────────────────────────

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create [ID]",
	Short: "Create a user (random ID when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if len(args) == 1 {
			body["id"] = args[0]
		}
		return postJSON(cmd, "/api/users", body)
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show USER",
	Short: "Show balances, levels and streak",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, client.UserPath(args[0]))
	},
}

var userLoginCmd = &cobra.Command{
	Use:   "login USER",
	Short: "Record today's login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON(cmd, client.UserPath(args[0], "login"), nil)
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile USER",
	Short: "Show the composed mining profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, client.UserPath(args[0], "profile"))
	},
}

var userLevelCmd = &cobra.Command{
	Use:   "level USER",
	Short: "Show level and XP progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, client.UserPath(args[0], "level"))
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger USER",
	Short: "List recent ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		q := url.Values{"limit": {fmt.Sprint(limit)}}
		return getJSON(cmd, client.UserPath(args[0], "ledger")+"?"+q.Encode())
	},
}

// ─── upgrade ────────────────────────────────────────────────────────────────

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Inspect and buy upgrade tiers",
}

var upgradeListCmd = &cobra.Command{
	Use:   "list USER",
	Short: "Show the next tier of every track",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, client.UserPath(args[0], "upgrades"))
	},
}

var upgradeBuyCmd = &cobra.Command{
	Use:       "buy USER TRACK",
	Short:     "Buy the next tier of a track (rate, boost, time, nftSlots)",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"rate", "boost", "time", "nftSlots"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON(cmd, client.UserPath(args[0], "upgrades", url.PathEscape(args[1])), nil)
	},
}

// ─── nft ────────────────────────────────────────────────────────────────────

var nftCmd = &cobra.Command{
	Use:     "nft",
	Aliases: []string{"collectible"},
	Short:   "Manage boost collectibles",
}

var nftListCmd = &cobra.Command{
	Use:   "list USER",
	Short: "List collectibles and slot usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, client.UserPath(args[0], "collectibles"))
	},
}

var nftGrantCmd = &cobra.Command{
	Use:   "grant USER",
	Short: "Grant a collectible",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		duration, _ := cmd.Flags().GetFloat64("duration")
		boosts := map[string]float64{}
		for flag, key := range map[string]string{
			"mining-rate":       "mining_rate",
			"mining-time":       "mining_time",
			"reward-multiplier": "reward_multiplier",
			"special":           "special",
		} {
			if v, _ := cmd.Flags().GetFloat64(flag); v != 0 {
				boosts[key] = v
			}
		}
		return postJSON(cmd, client.UserPath(args[0], "collectibles"), map[string]interface{}{
			"name":           name,
			"boosts":         boosts,
			"duration_hours": duration,
		})
	},
}

var nftActivateCmd = &cobra.Command{
	Use:   "activate USER COLLECTIBLE_ID",
	Short: "Start a collectible's boost window",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON(cmd, client.UserPath(args[0], "collectibles", url.PathEscape(args[1]), "activate"), nil)
	},
}

// ─── referral ───────────────────────────────────────────────────────────────

var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Manage referrals",
}

var referralListCmd = &cobra.Command{
	Use:   "list USER",
	Short: "List referees and the referral boost",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, client.UserPath(args[0], "referrals"))
	},
}

var referralAddCmd = &cobra.Command{
	Use:   "add REFERRER REFEREE",
	Short: "Record a referral",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON(cmd, client.UserPath(args[0], "referrals"), map[string]string{"referee": args[1]})
	},
}

// ─── catalog ────────────────────────────────────────────────────────────────

var catalogCmd = &cobra.Command{
	Use:       "catalog levels|upgrades",
	Short:     "Print the level or upgrade catalog",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"levels", "upgrades"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, "/api/catalog/"+args[0])
	},
}
