package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/globals"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/upload"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for the administration of studyhub groups and users.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	log.SetFlags(0)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show groups or users",
		Long:  `show is for printing user or group information.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowGroups = &cobra.Command{
		Use:   "groups",
		Short: "Show groups",
		Long:  `show groups lists all study groups.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			groups, err := persister.Groups()
			if err != nil {
				globals.AppLogger.Error("could not get groups", "error", err)
				return
			}
			g, err := json.Marshal(groups)
			if err != nil {
				globals.AppLogger.Error("could not marshal groups", "error", err)
				return
			}
			fmt.Println(string(g))
		},
	}
	var cmdShowGroup = &cobra.Command{
		Use:   "group [group id]",
		Short: "Show group",
		Long:  `show group prints detail information about the group with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				globals.AppLogger.Error("invalid group id", "error", err)
				return
			}
			group, err := persister.GetGroup(uint(id))
			if err != nil {
				globals.AppLogger.Error("could not get group", "error", err)
				return
			}
			g, err := json.Marshal(group)
			if err != nil {
				globals.AppLogger.Error("could not marshal group", "error", err)
				return
			}
			fmt.Println(string(g))
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `show users lists all registered users.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.Users()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			u, err := json.Marshal(users)
			if err != nil {
				globals.AppLogger.Error("could not marshal users", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				globals.AppLogger.Error("invalid user id", "error", err)
				return
			}
			user, err := persister.GetUser(uint(id))
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			u, err := json.Marshal(user)
			if err != nil {
				globals.AppLogger.Error("could not marshal user", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowMessages = &cobra.Command{
		Use:   "messages [group id]",
		Short: "Show messages",
		Long:  `show messages lists the message history of the group with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				globals.AppLogger.Error("invalid group id", "error", err)
				return
			}
			messages, err := persister.MessagesForGroup(uint(id))
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			m, err := json.Marshal(messages)
			if err != nil {
				globals.AppLogger.Error("could not marshal messages", "error", err)
				return
			}
			fmt.Println(string(m))
		},
	}
	var cmdSweep = &cobra.Command{
		Use:   "sweep",
		Short: "Sweep orphaned uploads",
		Long:  `sweep removes uploaded files which are no longer referenced by any message or user.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			relay, err := upload.NewRelay(globalConfig)
			if err != nil {
				globals.AppLogger.Error("could not open upload directory", "error", err)
				return
			}
			if err := relay.Sweep(persister); err != nil {
				globals.AppLogger.Error("sweep failed", "error", err)
				return
			}
		},
	}
	var rootCmd = &cobra.Command{Use: "studyhub-admin"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdSweep)
	cmdShow.AddCommand(cmdShowGroups, cmdShowGroup, cmdShowUsers, cmdShowUser, cmdShowMessages)
	rootCmd.Execute()
}
