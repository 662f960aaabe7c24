package auth

import (
	"fmt"

	ldap "github.com/go-ldap/ldap/v3"

	"github.com/example/vkube-console/internal/config"
)

// LDAPIdentity é a identidade externa verificada devolvida por um login LDAP
// bem-sucedido. Subject é o DN do usuário.
type LDAPIdentity struct {
	Subject     string
	Email       string
	DisplayName string
}

// LDAPAuthenticate autentica o usuário no LDAP (bind técnico, busca por uid,
// bind como o próprio usuário) e devolve a identidade verificada.
func LDAPAuthenticate(username, password string, cfg *config.Config) (*LDAPIdentity, error) {
	l, err := ldap.DialURL(cfg.LDAPURL)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	// Primeiro bind técnico
	if err := l.Bind(cfg.LDAPBindDN, cfg.LDAPBindPass); err != nil {
		return nil, fmt.Errorf("erro bind técnico: %w", err)
	}

	searchRequest := ldap.NewSearchRequest(
		cfg.LDAPBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(username)),
		[]string{"dn", "cn", "displayName", "mail"},
		nil,
	)
	sr, err := l.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar usuário: %w", err)
	}
	if len(sr.Entries) != 1 {
		return nil, fmt.Errorf("usuário não encontrado ou múltiplos resultados")
	}

	entry := sr.Entries[0]
	displayName := entry.GetAttributeValue("displayName")
	if displayName == "" {
		displayName = entry.GetAttributeValue("cn")
	}
	email := entry.GetAttributeValue("mail")
	if email == "" {
		// Sem atributo mail não dá para criar a conta local.
		return nil, fmt.Errorf("usuário sem email no diretório")
	}

	// Bind como o próprio usuário para validar senha
	if err := l.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("credenciais inválidas: %w", err)
	}

	return &LDAPIdentity{
		Subject:     entry.DN,
		Email:       email,
		DisplayName: displayName,
	}, nil
}
