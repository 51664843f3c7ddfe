package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/config"
)

// newSetupCmd creates the `omniclaw setup` interactive wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run configuration",
		Long: `Walks through the initial configuration: assistant name, model
providers, API keys, and the life engine. Writes config.yaml and stores
credentials in the system keyring (with a .env fallback).`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	name := cfg.Name
	providerName := cfg.Brain.Provider
	model := cfg.Brain.Model
	apiKey := ""
	lifeEnabled := cfg.Life.Enabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant name").
				Value(&name),
			huh.NewSelect[string]().
				Title("Model provider").
				Options(
					huh.NewOption("Anthropic", "anthropic"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("GLM", "glm"),
				).
				Value(&providerName),
			huh.NewInput().
				Title("Model").
				Description("e.g. claude-sonnet-4-5, gpt-4o").
				Value(&model),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to keep an existing key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewConfirm().
				Title("Enable the life engine?").
				Description("Autonomous activities while idle (journal, browse, reflect...)").
				Value(&lifeEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	cfg.Name = strings.TrimSpace(name)
	cfg.Brain = config.ProviderConfig{Provider: providerName, Model: strings.TrimSpace(model)}
	if cfg.Orchestrator.Provider == "" {
		cfg.Orchestrator = cfg.Brain
	}
	cfg.Life.Enabled = lifeEnabled

	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", cfgPath)

	if key := strings.TrimSpace(apiKey); key != "" {
		env := config.NewEnvStore(filepath.Join(config.HomeDir(), ".env"))
		credName := strings.ToUpper(providerName) + "_API_KEY"
		if err := env.SaveCredential(credName, key); err != nil {
			return fmt.Errorf("storing API key: %w", err)
		}
		fmt.Printf("API key stored as %s\n", credName)
	}

	fmt.Println("Setup complete. Start the assistant with: omniclaw serve")
	return nil
}
