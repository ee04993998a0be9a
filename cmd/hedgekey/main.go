// Command hedgekey encrypts a Delta Exchange API secret into the JSON file
// read through delta.encrypted_secret_path, or decrypts one to verify it.
//
// Usage:
//
//	hedgekey -out delta.key            # secret read from stdin
//	hedgekey -verify -in delta.key
//
// The password comes from -password or HEDGEBOT_KEY_PASSWORD.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
)

func main() {
	out := flag.String("out", "delta.key", "file to write the encrypted secret to")
	in := flag.String("in", "", "encrypted secret file to verify")
	verify := flag.Bool("verify", false, "decrypt -in and report whether the password matches")
	password := flag.String("password", "", "encryption password (default $HEDGEBOT_KEY_PASSWORD)")
	flag.Parse()

	pw := *password
	if pw == "" {
		pw = os.Getenv("HEDGEBOT_KEY_PASSWORD")
	}
	if pw == "" {
		fatalf("a password is required (-password or HEDGEBOT_KEY_PASSWORD)")
	}

	if *verify {
		if *in == "" {
			fatalf("-verify needs -in")
		}
		secret, err := crypto.LoadSecret(crypto.SecretConfig{EncryptedPath: *in, Password: pw})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("ok: %s decrypts to a %d-character secret\n", *in, len(secret))
		return
	}

	fmt.Fprint(os.Stderr, "Delta API secret: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fatalf("read secret: %v", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		fatalf("empty secret")
	}

	blob, err := crypto.EncryptSecret(secret, pw)
	if err != nil {
		fatalf("%v", err)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fatalf("write %s: %v", *out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "hedgekey: "+format+"\n", args...)
	os.Exit(1)
}
