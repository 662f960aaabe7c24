// hashgen gera o hash bcrypt usado em LOCAL_ADMIN_PASSWORD_HASH.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := flag.String("password", "", "senha a ser hasheada")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "uso: hashgen -password <senha>")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), 12)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(hash))
}
