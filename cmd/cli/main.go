package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "mt5-history",
		Short: "MT5 History CLI",
		Long: `CLI para o histórico de operações do MetaTrader 5.
Agrega lucro/prejuízo por dia, importa exports CSV/JSON e consulta o banco.`,
		SilenceUsage: true,
	}

	// Comando aggregate
	var aggregateCmd = &cobra.Command{
		Use:   "aggregate [file]",
		Short: "Agrega o lucro diário de um export CSV ou JSON",
		Long: `Lê um export de histórico do MT5 e imprime o lucro/prejuízo por dia,
na ordem em que cada data aparece no arquivo. Não acessa banco nem Redis.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			cumulative, _ := cmd.Flags().GetBool("cumulative")
			return runAggregate(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], asJSON, cumulative)
		},
	}

	aggregateCmd.Flags().Bool("json", false, "Saída em JSON")
	aggregateCmd.Flags().BoolP("cumulative", "c", false, "Inclui a curva acumulada")

	// Comando list
	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lista exports disponíveis para carregar",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("dir")
			return listFiles(cmd.OutOrStdout(), dataDir)
		},
	}

	listCmd.Flags().StringP("dir", "d", "./data", "Diretório dos dados")

	// Comando load
	var loadCmd = &cobra.Command{
		Use:   "load [login] [files...]",
		Short: "Carrega exports no banco para um login",
		Long: `Carrega arquivos CSV/JSON no banco de dados para o login informado.
Aceita múltiplos arquivos e suporta wildcards (ex: data/*.csv)`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			replace, _ := cmd.Flags().GetBool("replace")
			return loadFiles(cmd.Context(), cmd.OutOrStdout(), args[0], args[1:], replace)
		},
	}

	loadCmd.Flags().BoolP("replace", "r", false, "Substitui o histórico do login em vez de acrescentar")

	// Comando query
	var queryCmd = &cobra.Command{
		Use:   "query [login]",
		Short: "Consulta o lucro diário de um login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, _ := cmd.Flags().GetBool("summary")
			return queryLogin(cmd.Context(), cmd.OutOrStdout(), args[0], summary)
		},
	}

	queryCmd.Flags().BoolP("summary", "s", false, "Mostra também o resumo")

	// Comando migrate
	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Cria as tabelas no PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), cmd.OutOrStdout())
		},
	}

	// Comando health
	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Verifica saúde do sistema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkHealth(cmd.Context(), cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(aggregateCmd, listCmd, loadCmd, queryCmd, migrateCmd, healthCmd)

	return rootCmd
}
