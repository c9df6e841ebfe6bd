package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/coreclaw/agentcore/internal/config"
)

// onboardCmd runs a first-run terminal wizard that collects the minimum
// config needed to start chatting: workspace path, default provider, and
// that provider's API key. Existing config.json values (if any) are used as
// the form's defaults, so re-running onboard to add a second provider or
// change the workspace doesn't clobber the rest of the file.
func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup (workspace, provider, credentials)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			provider := cfg.Agents.Defaults.Provider
			if provider == "" {
				provider = "anthropic"
			}
			workspace := cfg.Agents.Defaults.Workspace
			apiKey := ""
			discordToken := cfg.Channels.Discord.Token
			enableDiscord := cfg.Channels.Discord.Enabled

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Workspace directory").
						Description("Where bootstrap docs, session files, and the memory store live").
						Value(&workspace),
					huh.NewSelect[string]().
						Title("Default provider").
						Options(providerOptions()...).
						Value(&provider),
					huh.NewInput().
						Title(fmt.Sprintf("%s API key", provider)).
						EchoMode(huh.EchoModePassword).
						Value(&apiKey),
				),
				huh.NewGroup(
					huh.NewConfirm().
						Title("Enable the Discord channel?").
						Value(&enableDiscord),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Discord bot token").
						EchoMode(huh.EchoModePassword).
						Value(&discordToken),
				).WithHideFunc(func() bool { return !enableDiscord }),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("onboarding form: %w", err)
			}

			if workspace != "" {
				cfg.Agents.Defaults.Workspace = workspace
			}
			cfg.Agents.Defaults.Provider = provider
			if apiKey != "" {
				setProviderAPIKey(cfg, provider, apiKey)
			}
			cfg.Channels.Discord.Enabled = enableDiscord
			if discordToken != "" {
				cfg.Channels.Discord.Token = discordToken
			}

			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(os.Stdout, "Saved config to %s. Run \"agentcore chat\" to start.\n", path)
			return nil
		},
	}
}

func providerOptions() []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(allProviderNames))
	for _, name := range allProviderNames {
		opts = append(opts, huh.NewOption(name, name))
	}
	return opts
}

// setProviderAPIKey writes apiKey into the ProviderConfig named by name. A
// small switch rather than reflection, matching providerConfigByName's
// style in cmd/providers.go.
func setProviderAPIKey(cfg *config.Config, name, apiKey string) {
	switch name {
	case "anthropic":
		cfg.Providers.Anthropic.APIKey = apiKey
	case "openai":
		cfg.Providers.OpenAI.APIKey = apiKey
	case "openrouter":
		cfg.Providers.OpenRouter.APIKey = apiKey
	case "groq":
		cfg.Providers.Groq.APIKey = apiKey
	case "gemini":
		cfg.Providers.Gemini.APIKey = apiKey
	case "deepseek":
		cfg.Providers.DeepSeek.APIKey = apiKey
	case "mistral":
		cfg.Providers.Mistral.APIKey = apiKey
	case "xai":
		cfg.Providers.XAI.APIKey = apiKey
	case "minimax":
		cfg.Providers.MiniMax.APIKey = apiKey
	case "cohere":
		cfg.Providers.Cohere.APIKey = apiKey
	case "perplexity":
		cfg.Providers.Perplexity.APIKey = apiKey
	}
}
