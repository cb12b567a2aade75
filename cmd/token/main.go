package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/annel0/iso-game/internal/auth"
	"github.com/annel0/iso-game/internal/config"
)

// Выпускает токен подключения для игрока по секрету из конфигурации сервера.
func main() {
	configPath := flag.String("c", "", "YAML файл конфигурации сервера")
	player := flag.String("n", "", "имя игрока")
	admin := flag.Bool("admin", false, "выдать права администратора")
	newSecret := flag.Bool("new-secret", false, "сгенерировать новый секрет и выйти")
	flag.Parse()

	if *newSecret {
		fmt.Println(auth.GenerateSecureSecret())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	secret := cfg.Auth.GetSecret()
	if secret == "" {
		log.Fatalf("❌ Секрет не задан: auth.secret или GAME_AUTH_SECRET")
	}
	if *player == "" {
		fmt.Fprintln(os.Stderr, "использование: token -n <игрок> [-c config.yaml] [-admin]")
		os.Exit(2)
	}

	issuer, err := auth.NewTokenIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	token, err := issuer.Generate(*player, *admin)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	fmt.Println(token)
}
