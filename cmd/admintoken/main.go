package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// 生成管理令牌的 bcrypt 哈希，写入 OUTREACH_ADMIN_TOKEN_HASH 后
// 管理接口即要求 Bearer 令牌。
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: admintoken <token>")
		os.Exit(1)
	}

	token := os.Args[1]
	if len(token) < 16 {
		fmt.Println("Token too short: use at least 16 characters")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Failed to hash token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Admin token hash generated:")
	fmt.Println(string(hash))
	fmt.Println()
	fmt.Println("Set it in the environment before starting the server:")
	fmt.Printf("  export OUTREACH_ADMIN_TOKEN_HASH='%s'\n", string(hash))
}
