package cmd

import (
	"ClearFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动ClearFM服务器",
	Long:  `启动ClearFM流媒体系统的HTTP服务器，提供上传、转换与受令牌保护的投递接口`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
