package room

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type authClaims struct {
	MemberID string
	RoomID   string
}

func (s *service) generateAuthToken(memberID, roomID string) (string, error) {
	claims := jwt.MapClaims{
		"member_id": memberID,
		"room_id":   roomID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(s.secret))
}

func (s *service) parseAuthToken(tokenString string) (*authClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	memberID, _ := claims["member_id"].(string)
	roomID, _ := claims["room_id"].(string)
	if memberID == "" || roomID == "" {
		return nil, errors.New("incomplete token claims")
	}

	return &authClaims{
		MemberID: memberID,
		RoomID:   roomID,
	}, nil
}
