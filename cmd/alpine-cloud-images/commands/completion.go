package commands

import "github.com/spf13/cobra"

// Completion returns the completion command for shell autocompletion.
func Completion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for alpine-cloud-images.

To load completions:

Bash:
  $ source <(alpine-cloud-images completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ alpine-cloud-images completion bash > /etc/bash_completion.d/alpine-cloud-images
  # macOS:
  $ alpine-cloud-images completion bash > $(brew --prefix)/etc/bash_completion.d/alpine-cloud-images

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  # To load completions for each session, execute once:
  $ alpine-cloud-images completion zsh > "${fpath[1]}/_alpine-cloud-images"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ alpine-cloud-images completion fish | source
  # To load completions for each session, execute once:
  $ alpine-cloud-images completion fish > ~/.config/fish/completions/alpine-cloud-images.fish

PowerShell:
  PS> alpine-cloud-images completion powershell | Out-String | Invoke-Expression
  # To load completions for every new session, run:
  PS> alpine-cloud-images completion powershell > alpine-cloud-images.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}
