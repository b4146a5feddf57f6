package models

// User is one row of the `users` table. Password holds the stored hash as is.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Email    string `db:"email" json:"email"`
	Password string `db:"password" json:"password"`
}
