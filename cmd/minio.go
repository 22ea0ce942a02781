package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"ClearFM/config"
	"ClearFM/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix  string
	minioFolders bool
	minioDelete  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的文件，支持列出对象、列出流目录、删除失败任务残留的目录等操作。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMinioStore(cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		// 根据参数执行不同的操作
		if minioDelete {
			// 删除目录，用于清理失败任务残留的流目录
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			count, err := store.DeleteFolder(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
			fmt.Printf("已删除 %d 个对象\n", count)
		} else if minioFolders {
			fmt.Printf("\n列出流目录 (前缀: %s)...\n", minioPrefix)
			folders, err := store.ListFolders(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("列出目录失败: %v", err)
			}
			for _, folder := range folders {
				fmt.Println(folder)
			}
			fmt.Printf("共 %d 个目录\n", len(folders))
		} else {
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
			objects, err := store.ListKeys(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("列出文件失败: %v", err)
			}
			var total int64
			for _, obj := range objects {
				fmt.Printf("%10d  %s\n", obj.Size, obj.Key)
				total += obj.Size
			}
			fmt.Printf("共 %d 个对象, %d 字节\n", len(objects), total)
		}

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	// 添加命令行参数
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioFolders, "folders", "f", false, "只列出流目录")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	// 添加使用说明
	minioCmd.Example = `  # 列出所有文件
  clearfm_server minio

  # 按前缀过滤文件
  clearfm_server minio -p "streams/"

  # 只列出流目录
  clearfm_server minio -f -p "streams/"

  # 删除失败任务残留的流目录
  clearfm_server minio -d -p "streams/broken-show/"`
}
