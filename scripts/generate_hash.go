//go:build ignore

// generate_hash.go — печатает Argon2id хеш пароля администратора лотереи.
// Запуск: go run scripts/generate_hash.go [-m 65536 -t 3 -p 2] <пароль>
// Без аргумента пароль читается из stdin (удобно, чтобы он не попал в историю shell).
//
// Результат вставьте в .env как ADMIN_PASSWORD_HASH.
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
)

func main() {
	memory := flag.Uint("m", 65536, "память в KiB")
	iterations := flag.Uint("t", 3, "число проходов")
	parallelism := flag.Uint("p", 2, "число потоков")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		fmt.Fprint(os.Stderr, "Пароль: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "Ошибка чтения пароля: %v\n", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "Пустой пароль")
		os.Exit(1)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка генерации соли: %v\n", err)
		os.Exit(1)
	}

	hash := argon2.IDKey([]byte(password), salt, uint32(*iterations), uint32(*memory), uint8(*parallelism), 32)

	fmt.Printf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s\n",
		argon2.Version, *memory, *iterations, *parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}
