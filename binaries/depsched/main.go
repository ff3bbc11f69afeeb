// depsched runs the dependency-aware scheduler's demo producer and queries the
// admin endpoint of a running instance.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twitter/depsched/common/errors"
	deplog "github.com/twitter/depsched/common/log"
)

func main() {
	deplog.Setup(log.InfoLevel)
	c := newCLI()
	if err := c.Exec(); err != nil {
		log.WithFields(log.Fields{"err": err}).Error("depsched failed")
		os.Exit(int(errors.ExitCodeFor(err)))
	}
}

type cli struct {
	rootCmd    *cobra.Command
	configFlag string
}

func newCLI() *cli {
	c := &cli{}
	c.rootCmd = &cobra.Command{
		Use:           "depsched",
		Short:         "depsched is a dependency-aware job scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.rootCmd.PersistentFlags().StringVar(&c.configFlag, "config", "",
		"Scheduler config: literal JSON, or the path of a .json file")

	c.addCmd(&demoCmd{})
	c.addCmd(&statsCmd{})
	return c
}

func (c *cli) Exec() error {
	return c.rootCmd.Execute()
}

func (c *cli) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}

type command interface {
	registerFlags() *cobra.Command
	run(c *cli, cmd *cobra.Command, args []string) error
}
