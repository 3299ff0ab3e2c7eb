package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// listen: print relayed messages until interrupted.
func (a *app) listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Connect to the relay and print incoming messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := a.api.Dial(ctx)
			if err != nil {
				return err
			}
			stop := closeOnDone(ctx, conn)
			defer stop()

			fmt.Fprintln(a.out, "listening, press Ctrl-C to stop")
			for {
				f, err := conn.Read()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("relay connection lost: %w", err)
				}
				printFrame(a.out, f)
			}
		},
	}
}

// send <user> <text>: send one message and wait for its ACK.
func (a *app) sendCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "send <user> <text>",
		Short: "Send one message through the relay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := ciphertextArg(args[1], raw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			conn, err := a.api.Dial(ctx)
			if err != nil {
				return err
			}
			stop := closeOnDone(ctx, conn)
			defer stop()

			if err := conn.Send(args[0], ct); err != nil {
				return err
			}
			for {
				f, err := conn.Read()
				if err != nil {
					return fmt.Errorf("waiting for ack: %w", err)
				}
				if f.Type != "ACK" {
					// Messages queued for us while offline arrive first.
					printFrame(a.out, f)
					continue
				}
				if !f.OK {
					return fmt.Errorf("relay rejected message: %s", f.Error)
				}
				fmt.Fprintln(a.out, "sent")
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "treat <text> as a JSON value")
	return cmd
}

// chat [user]: interactive session.
func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [user]",
		Short: "Interactive chat session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := ""
			if len(args) == 1 {
				to = args[0]
			}

			ctx := cmd.Context()
			conn, err := a.api.Dial(ctx)
			if err != nil {
				return err
			}
			stop := closeOnDone(ctx, conn)
			defer stop()

			return runChat(ctx, conn, a.in, a.out, to)
		},
	}
}
