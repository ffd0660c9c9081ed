// ABOUTME: Discover command browsing for replay stream servers
// ABOUTME: Prints each server found within the browse window
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/megamicros/megamicros-go/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find replay stream servers on the local network",
		Long: `Browses mDNS for replay stream servers and prints each one found
within the browse window.`,
		Example: `  megamicros discover
  megamicros discover --timeout 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be positive")
			}

			log, err := buildLogger(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			mgr := discovery.NewManager(discovery.Config{}, log)
			if err := mgr.Browse(); err != nil {
				return err
			}
			defer mgr.Stop()

			seen := make(map[string]struct{})
			deadline := time.After(timeout)
			for {
				select {
				case s := <-mgr.Servers():
					key := fmt.Sprintf("%s %s:%d", s.Name, s.Host, s.Port)
					if _, ok := seen[key]; ok {
						continue
					}
					seen[key] = struct{}{}
					fmt.Printf("%s  %s:%d\n", s.Name, s.Host, s.Port)
				case <-deadline:
					if len(seen) == 0 {
						fmt.Println("no replay servers found")
					}
					return nil
				}
			}
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to browse")

	return cmd
}
