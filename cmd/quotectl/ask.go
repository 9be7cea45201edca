package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/drawing-quotes/internal/server"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Search the reference corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Int("top-k", 5, "maximum number of excerpts")
	askCmd.Flags().String("server", "", "ask a running quotesd at this address instead of the local index")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")
	addr, _ := cmd.Flags().GetString("server")
	out := cmd.OutOrStdout()

	if addr != "" {
		return askRemote(cmd.Context(), cmd, addr, args[0], topK)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.Ask(ctx, args[0], topK)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(out, res)
	}
	if len(res.Matches) == 0 {
		printf(out, "No matching excerpts. Run `quotectl index` to build the corpus index.\n")
		return nil
	}
	for i, m := range res.Matches {
		printf(out, "%d. %s p.%d #%d  score=%.3f\n   %s\n", i+1, m.Source, m.Page, m.Index, m.Score, m.Preview)
	}
	return nil
}

func askRemote(ctx context.Context, cmd *cobra.Command, addr, question string, topK int) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	in, err := structpb.NewStruct(map[string]any{"question": question, "top_k": topK})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := server.NewClient(conn).Call(ctx, server.MethodAsk, in)
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(res)
	if err != nil {
		return err
	}
	printf(cmd.OutOrStdout(), "%s\n", b)
	return nil
}
