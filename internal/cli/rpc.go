package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRPCCommand(opts *globalOptions) *cobra.Command {
	var params string

	cmd := &cobra.Command{
		Use:   "rpc <function>",
		Short: "Call a platform RPC function with the stored session",
		Long: `Call a database RPC function. The session is refreshed ahead of time
when it is about to expire, and once more when the call is rejected.`,
		Example: `  authclient rpc get_user_balance
  authclient rpc view_ad --params '{"ad_id": "7f1c"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &body); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var out json.RawMessage
				if err := a.invoker.Call(ctx, args[0], body, &out); err != nil {
					return err
				}
				if len(out) == 0 {
					return nil
				}
				var decoded any
				if err := json.Unmarshal(out, &decoded); err != nil {
					return err
				}
				return a.printJSON(decoded)
			})
		},
	}

	cmd.Flags().StringVar(&params, "params", "", "JSON object with the function arguments")
	return cmd
}
