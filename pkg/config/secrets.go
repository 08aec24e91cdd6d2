package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Secrets file parameters.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// Vault holds decrypted secrets in memory for the process lifetime. It is an
// explicit object passed by handle, not ambient global state.
type Vault struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewVault creates an empty secrets vault.
func NewVault() *Vault {
	return &Vault{secrets: make(map[string]string)}
}

// Get returns a secret by name, preferring the vault and falling back to the
// environment.
func (v *Vault) Get(name string) (string, error) {
	v.mu.RLock()
	value := v.secrets[name]
	v.mu.RUnlock()
	if value != "" {
		return value, nil
	}
	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in vault or environment", name)
}

// Set stores a secret in memory. Save persists it.
func (v *Vault) Set(name, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[name] = value
}

// Delete removes a secret from memory.
func (v *Vault) Delete(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.secrets, name)
}

// Names returns the stored secret names, never the values.
func (v *Vault) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.secrets))
	for name := range v.secrets {
		names = append(names, name)
	}
	return names
}

// SecretsFileExists reports whether an encrypted secrets file exists for the
// project.
func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(filepath.Join(projectDir, ProjectConfigDir, secretsFileName))
	return err == nil
}

// Save encrypts the vault contents to <projectDir>/.planner/secrets.json.enc
// with a key derived from password. The file is written with 0600
// permissions; layout is [salt][nonce][ciphertext+tag].
func (v *Vault) Save(projectDir, password string) error {
	v.mu.RLock()
	plaintext, err := json.Marshal(v.secrets)
	v.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := deriveCipher(password, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	dir := filepath.Join(projectDir, ProjectConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", ProjectConfigDir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, secretsFileName), fileData, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// Load decrypts the project secrets file into the vault, replacing its
// contents. Loose file permissions are tightened to 0600 before reading.
func (v *Vault) Load(projectDir, password string) error {
	path := filepath.Join(projectDir, ProjectConfigDir, secretsFileName)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0o600 {
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			return fmt.Errorf("failed to fix secrets file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}
	// 16 is the GCM tag size.
	if len(fileData) < saltSize+nonceSize+16 {
		return fmt.Errorf("secrets file is corrupted or truncated")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	gcm, err := deriveCipher(password, salt)
	if err != nil {
		return err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decryption failed (wrong password or corrupted file)")
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return fmt.Errorf("failed to parse secrets: %w", err)
	}

	v.mu.Lock()
	v.secrets = secrets
	v.mu.Unlock()
	return nil
}

// deriveKey stretches the password with scrypt.
func deriveKey(password string, salt []byte) ([]byte, error) {
	passwordBytes := []byte(password)
	defer func() {
		for i := range passwordBytes {
			passwordBytes[i] = 0
		}
	}()

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return key, nil
}

// deriveCipher builds an AES-256-GCM cipher from a password and salt. Key
// material is zeroed before returning.
func deriveCipher(password string, salt []byte) (cipher.AEAD, error) {
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
