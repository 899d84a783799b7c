package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SanJoeng/ChatLab/pkg/agent"
	"github.com/SanJoeng/ChatLab/pkg/prompts"
	"github.com/SanJoeng/ChatLab/pkg/toolruntime"
)

var (
	askChatKey string
	askStream  bool
	askGroup   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the chat history",
	Long: `Ask runs the agent over the imported chat corpus and prints the
final answer. With --stream, visible model output is printed as it
arrives along with tool activity.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askChatKey, "chat", "default", "chat corpus to query")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	askCmd.Flags().BoolVar(&askGroup, "group", false, "treat the chat as a group conversation")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	provider, err := a.provider()
	if err != nil {
		return err
	}

	chatType := prompts.ChatTypePrivate
	if askGroup {
		chatType = prompts.ChatTypeGroup
	}

	ag, err := agent.New(agent.Config{
		Provider: provider,
		Runtime:  a.tools,
		ExecContext: &toolruntime.ExecutionContext{
			ChatKey:     askChatKey,
			MaxMessages: a.cfg.Chat.MessageLimit,
			Locale:      a.cfg.Agent.Locale,
		},
		Settings: a.cfg,
		Options: agent.Options{
			Model:         a.cfg.AI.Model,
			MaxToolRounds: a.cfg.Agent.MaxToolRounds,
			Temperature:   a.cfg.Agent.Temperature,
			MaxTokens:     a.cfg.Agent.MaxTokens,
		},
		ChatType: chatType,
		Locale:   a.cfg.Agent.Locale,
		Logger:   a.log.GetZerolog(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !askStream {
		res, err := ag.Execute(ctx, question)
		if err != nil {
			return err
		}
		fmt.Println(res.Content)
		printUsage(res)
		return nil
	}

	res, err := ag.ExecuteStream(ctx, question, func(chunk agent.StreamChunk) {
		switch chunk.Type {
		case agent.ChunkContent:
			fmt.Print(chunk.Content)
		case agent.ChunkToolCall:
			fmt.Fprintf(os.Stderr, "\n[tool] %s %s\n", chunk.ToolName, chunk.ToolArgs)
		case agent.ChunkToolResult:
			if chunk.ToolResult != nil && !chunk.ToolResult.Success {
				fmt.Fprintf(os.Stderr, "[tool] %s failed: %s\n", chunk.ToolName, chunk.ToolResult.Error)
			}
		case agent.ChunkError:
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", chunk.Error)
		}
	})
	if err != nil {
		return err
	}
	fmt.Println()
	printUsage(res)
	return nil
}

func printUsage(res agent.Result) {
	fmt.Fprintf(os.Stderr, "tokens: %d prompt, %d completion; tool rounds: %d\n",
		res.TotalUsage.PromptTokens, res.TotalUsage.CompletionTokens, res.ToolRounds)
}
